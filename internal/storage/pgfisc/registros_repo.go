package pgfisc

import (
	"context"
	"time"

	"github.com/AduanaTI/fiscbox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// RegistroNuevo son los datos de inserción de un registro de fiscalización.
// El id del registro lo asigna el almacenamiento (max+1 dentro de la acción).
type RegistroNuevo struct {
	IDAccionFiscalizacion int64

	NumeroDocAsociado   string
	CodigoTipoDocumento string
	IDDocumentoAsociado int64

	FechaEjecucion time.Time

	OpAduaneraRetenida   string
	OpTransporteRetenida string

	IDEjecutante     int64
	NombreEjecutante string

	CodigoDenuncia *string
	FechaActiva    time.Time
}

// ResultadoNuevo es un resultado a insertar para un registro ya creado.
// La observación llega ya truncada a 255 caracteres por el servicio.
type ResultadoNuevo struct {
	IDRegistroFiscalizacion int64
	IDAccionFiscalizacion   int64
	CodigoResultado         string
	Observacion             *string
	FechaActivo             time.Time
}

// CrearRegistro asigna el siguiente id dentro de la acción e inserta el
// registro. La numeración max+1 por acción viene del esquema heredado; aquí
// el select-max y el insert van en una transacción que primero bloquea la
// fila de la acción (FOR UPDATE), para que dos peticiones concurrentes sobre
// la misma acción no colisionen en el mismo id.
func (s *Storage) CrearRegistro(ctx context.Context, in RegistroNuevo) (int64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var accionID int64
	err = tx.QueryRow(ctx, `
SELECT id FROM opfisc_accion_fiscalizacion WHERE id = $1 FOR UPDATE
`, in.IDAccionFiscalizacion).Scan(&accionID)
	if err != nil {
		return 0, errors.Wrap(err, "lock accion")
	}

	var nextID int64
	err = tx.QueryRow(ctx, `
SELECT COALESCE(MAX(id), 0) + 1
FROM opfisc_registro_fiscalizacion
WHERE id_accion_fiscalizacion = $1
`, in.IDAccionFiscalizacion).Scan(&nextID)
	if err != nil {
		return 0, errors.Wrap(err, "next registro id")
	}

	_, err = tx.Exec(ctx, `
INSERT INTO opfisc_registro_fiscalizacion (
  id, id_accion_fiscalizacion,
  numero_doc_asociado, codigo_tipo_documento, id_documento_asociado,
  identificacion_vehiculo, fecha_ejecucion,
  op_aduanera_retenida, op_transporte_retenida,
  id_ejecutante, nombre_ejecutante,
  activo, fecha_activa, fecha_desactiva, fecha_modificacion,
  codigo_denuncia, total_bultos
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'S',$12,$13,$12,$14,NULL)
`,
		nextID, in.IDAccionFiscalizacion,
		in.NumeroDocAsociado, in.CodigoTipoDocumento, in.IDDocumentoAsociado,
		models.VehiculoNoAplica, in.FechaEjecucion.UTC(),
		in.OpAduaneraRetenida, in.OpTransporteRetenida,
		in.IDEjecutante, in.NombreEjecutante,
		in.FechaActiva.UTC(), models.FechaDesactivaNula,
		in.CodigoDenuncia,
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert registro")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return nextID, nil
}

// CrearResultadoAccion toma el siguiente id de la secuencia (atómico) e
// inserta el resultado asociado al registro.
func (s *Storage) CrearResultadoAccion(ctx context.Context, in ResultadoNuevo) (int64, error) {
	var nextID int64
	err := s.db.QueryRow(ctx, `SELECT nextval('sec_opfisc_resultado_accion')`).Scan(&nextID)
	if err != nil {
		return 0, errors.Wrap(err, "next resultado id")
	}

	_, err = s.db.Exec(ctx, `
INSERT INTO opfisc_resultado_accion (
  id, id_registro_fiscalizacion, id_accion_fiscalizacion,
  codigo_resultado, observacion,
  activo, fecha_activo, fecha_desactivo
)
VALUES ($1,$2,$3,$4,$5,'S',$6,$7)
`,
		nextID, in.IDRegistroFiscalizacion, in.IDAccionFiscalizacion,
		in.CodigoResultado, in.Observacion,
		in.FechaActivo.UTC(), models.FechaDesactivaNula,
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert resultado accion")
	}
	return nextID, nil
}

// ActualizarRetencionesAccion es la única mutación permitida sobre una
// acción existente.
func (s *Storage) ActualizarRetencionesAccion(ctx context.Context, idAccion int64, opAduanera, opTransporte string) error {
	_, err := s.db.Exec(ctx, `
UPDATE opfisc_accion_fiscalizacion
SET op_aduanera_retenida = $2,
    op_transporte_retenida = $3
WHERE id = $1
`, idAccion, opAduanera, opTransporte)
	return errors.Wrap(err, "update retenciones accion")
}

// BuscarRegistroActivo carga un registro vivo por su clave compuesta.
// Devuelve nil si no existe, la acción no coincide o ya está inactivo.
func (s *Storage) BuscarRegistroActivo(ctx context.Context, idRegistro, idAccion int64) (*models.RegistroActivo, error) {
	var r models.RegistroActivo
	err := s.db.QueryRow(ctx, `
SELECT id, id_accion_fiscalizacion, numero_doc_asociado
FROM opfisc_registro_fiscalizacion
WHERE id = $1
  AND id_accion_fiscalizacion = $2
  AND activo = 'S'
LIMIT 1
`, idRegistro, idAccion).Scan(&r.ID, &r.IDAccionFiscalizacion, &r.NumeroDocAsociado)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select registro activo")
	}
	return &r, nil
}

// DesactivarRegistro hace el borrado lógico condicionado a que el registro
// siga activo; devuelve cuántas filas cambió para que el servicio detecte la
// carrera entre la carga y el update. Las filas de resultado no se tocan.
func (s *Storage) DesactivarRegistro(ctx context.Context, idRegistro, idAccion int64, fecha time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE opfisc_registro_fiscalizacion
SET activo = 'N',
    fecha_desactiva = $3
WHERE id = $1
  AND id_accion_fiscalizacion = $2
  AND activo = 'S'
`, idRegistro, idAccion, fecha.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "desactivar registro")
	}
	return tag.RowsAffected(), nil
}
