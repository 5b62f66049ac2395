package models

import "time"

// Flags "S"/"N" tal como se almacenan en las columnas CHAR(1) heredadas.
const (
	FlagSi = "S"
	FlagNo = "N"
)

// VehiculoNoAplica se guarda cuando el registro no tiene vehículo asociado:
// la columna es NOT NULL y el esquema heredado no admite cadena vacía.
const VehiculoNoAplica = " "

// FechaDesactivaNula es el centinela "nunca desactivado" que el esquema
// heredado usa en lugar de NULL.
var FechaDesactivaNula = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Documento es una guía u otro documento base. Solo lectura desde este sistema.
type Documento struct {
	ID                  int64
	NumeroDocumento     string
	CodigoTipoDocumento string
}

// AccionFiscalizacion es la acción activa alcanzable vía una marca activa,
// ya unida a su tipo de fiscalización.
type AccionFiscalizacion struct {
	ID                int64
	IDSolicitante     *int64
	NombreSolicitante string
	Descripcion       *string
	FechaPlanificada  *time.Time
	FechaEjecucion    *time.Time

	TipoCodigo      string
	TipoNombre      string
	TipoDescripcion *string
}

// ResultadoDisponible es una entrada del catálogo de resultados para un tipo
// de fiscalización. Datos de referencia, nunca se mutan desde aquí.
type ResultadoDisponible struct {
	Codigo             string
	Descripcion        string
	LiberaOpAduanera   string
	LiberaOpTransporte string
}

// RegistroHistorico es una fila de "Registros Encontrados" para una acción.
// Resultados y Observaciones llegan ya concatenados por el almacenamiento,
// y FechaActiva ya formateada (dd-mm-yyyy hh24:mi); se pasan tal cual.
type RegistroHistorico struct {
	IDRegistro     int64
	FechaEjecucion time.Time
	FechaActiva    string
	Resultados     string
	Observaciones  string
}

// RegistroPrevio son los campos del último registro activo de una guía que
// prellenan el formulario.
type RegistroPrevio struct {
	CodigoDenuncia       *string
	OpAduaneraRetenida   string
	OpTransporteRetenida string
}

// RegistroActivo es la proyección mínima de un registro vivo, cargada por su
// clave compuesta (ID, IDAccionFiscalizacion) antes de un borrado lógico.
type RegistroActivo struct {
	ID                    int64
	IDAccionFiscalizacion int64
	NumeroDocAsociado     string
}

// DatosIniciales son los valores con que se prellena el formulario de registro.
type DatosIniciales struct {
	NumeroDenuncia       string
	OpAduaneraRetenida   string
	OpTransporteRetenida string
}

// DatosInicialesPorDefecto: sin denuncia y sin retenciones.
func DatosInicialesPorDefecto() DatosIniciales {
	return DatosIniciales{
		NumeroDenuncia:       "",
		OpAduaneraRetenida:   FlagNo,
		OpTransporteRetenida: FlagNo,
	}
}
