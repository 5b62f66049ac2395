package pgfisc

import (
	"context"

	"github.com/AduanaTI/fiscbox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// GetDocumento carga la proyección mínima de una guía. Devuelve nil si no existe.
func (s *Storage) GetDocumento(ctx context.Context, id int64) (*models.Documento, error) {
	var d models.Documento
	err := s.db.QueryRow(ctx, `
SELECT id, numero_externo, tipo_documento
FROM doc_documento_base
WHERE id = $1
`, id).Scan(&d.ID, &d.NumeroDocumento, &d.CodigoTipoDocumento)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select documento")
	}
	return &d, nil
}

// GetAccionActivaPorDocumento resuelve la acción de fiscalización activa
// alcanzable desde el documento vía una marca activa, unida a su tipo.
// El DISTINCT sin ORDER BY viene del monolito: si varias acciones califican
// se devuelve una cualquiera, no hay regla de desempate.
func (s *Storage) GetAccionActivaPorDocumento(ctx context.Context, idDocumento int64) (*models.AccionFiscalizacion, error) {
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT
  a.id,
  a.fecha_planificada,
  a.fecha_ejecucion,
  a.id_solicitante,
  a.nombre_solicitante,
  a.descripcion,
  t.codigo,
  t.nombre,
  t.descripcion
FROM opfisc_accion_fiscalizacion a,
     opfisc_operacion o,
     opfisc_marca m,
     opfisc_tipo_fiscalizacion t
WHERE o.id = a.id_opfisc_operacion
  AND m.id_opfisc_operacion = o.id
  AND m.id_documento = $1
  AND m.activa = 'S'
  AND t.codigo = a.codigo_tipo_fiscalizacion
  AND a.activa = 'S'
`, idDocumento)
	if err != nil {
		return nil, errors.Wrap(err, "select accion activa")
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, errors.Wrap(rows.Err(), "rows")
		}
		return nil, nil
	}

	var a models.AccionFiscalizacion
	if err := rows.Scan(
		&a.ID, &a.FechaPlanificada, &a.FechaEjecucion,
		&a.IDSolicitante, &a.NombreSolicitante, &a.Descripcion,
		&a.TipoCodigo, &a.TipoNombre, &a.TipoDescripcion,
	); err != nil {
		return nil, errors.Wrap(err, "scan accion activa")
	}
	return &a, nil
}

// ListResultadosDisponibles lista el catálogo activo de resultados para un
// tipo de fiscalización, ordenado por descripción. No se cachea: cada
// preparación vuelve a consultar.
func (s *Storage) ListResultadosDisponibles(ctx context.Context, codigoTipo string) ([]*models.ResultadoDisponible, error) {
	rows, err := s.db.Query(ctx, `
SELECT codigo, descripcion, libera_op_aduanera, libera_op_transporte
FROM opfisc_resultado
WHERE codigo_tipo_fiscalizacion = $1
  AND activa = 'S'
ORDER BY descripcion
`, codigoTipo)
	if err != nil {
		return nil, errors.Wrap(err, "select resultados disponibles")
	}
	defer rows.Close()

	out := []*models.ResultadoDisponible{}
	for rows.Next() {
		var r models.ResultadoDisponible
		if err := rows.Scan(&r.Codigo, &r.Descripcion, &r.LiberaOpAduanera, &r.LiberaOpTransporte); err != nil {
			return nil, errors.Wrap(err, "scan resultado disponible")
		}
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetDescripcionResultado busca la descripción de un código de resultado
// activo. El segundo valor indica si se encontró.
func (s *Storage) GetDescripcionResultado(ctx context.Context, codigo string) (string, bool, error) {
	var desc string
	err := s.db.QueryRow(ctx, `
SELECT descripcion
FROM opfisc_resultado
WHERE codigo = $1
  AND activa = 'S'
LIMIT 1
`, codigo).Scan(&desc)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "select descripcion resultado")
	}
	return desc, true, nil
}

// ListRegistrosHistoricos devuelve los registros activos de una acción,
// ordenados por número de documento asociado. Los resultados y observaciones
// vienen ya concatenados desde el almacenamiento (equivalente a las funciones
// Gtime_getResultado / Gtime_getObservacion del monolito) y la fecha de alta
// ya formateada; el servicio los pasa tal cual.
func (s *Storage) ListRegistrosHistoricos(ctx context.Context, idAccion int64) ([]*models.RegistroHistorico, error) {
	rows, err := s.db.Query(ctx, `
SELECT r.id,
       r.fecha_ejecucion,
       to_char(r.fecha_activa, 'dd-mm-yyyy hh24:mi') AS fecha_activa,
       COALESCE((
         SELECT string_agg(res.descripcion, ', ' ORDER BY ra.id)
         FROM opfisc_resultado_accion ra
         JOIN opfisc_resultado res ON res.codigo = ra.codigo_resultado
         WHERE ra.id_registro_fiscalizacion = r.id
           AND ra.id_accion_fiscalizacion = r.id_accion_fiscalizacion
           AND ra.activo = 'S'
       ), '') AS resultados,
       COALESCE((
         SELECT string_agg(ra.observacion, ', ' ORDER BY ra.id)
         FROM opfisc_resultado_accion ra
         WHERE ra.id_registro_fiscalizacion = r.id
           AND ra.id_accion_fiscalizacion = r.id_accion_fiscalizacion
           AND ra.activo = 'S'
           AND ra.observacion IS NOT NULL
       ), '') AS observaciones
FROM opfisc_registro_fiscalizacion r
WHERE r.id_accion_fiscalizacion = $1
  AND r.activo = 'S'
ORDER BY r.numero_doc_asociado
`, idAccion)
	if err != nil {
		return nil, errors.Wrap(err, "select registros historicos")
	}
	defer rows.Close()

	out := []*models.RegistroHistorico{}
	for rows.Next() {
		var h models.RegistroHistorico
		var fechaActiva *string
		if err := rows.Scan(&h.IDRegistro, &h.FechaEjecucion, &fechaActiva, &h.Resultados, &h.Observaciones); err != nil {
			return nil, errors.Wrap(err, "scan registro historico")
		}
		if fechaActiva != nil {
			h.FechaActiva = *fechaActiva
		}
		out = append(out, &h)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// GetUltimoRegistroActivo devuelve el registro activo más reciente (id más
// alto) para una acción y un documento concretos, o nil si no hay ninguno.
// Prellena el formulario de registro individual.
func (s *Storage) GetUltimoRegistroActivo(ctx context.Context, idAccion, idDocumento int64) (*models.RegistroPrevio, error) {
	var p models.RegistroPrevio
	err := s.db.QueryRow(ctx, `
SELECT codigo_denuncia, op_aduanera_retenida, op_transporte_retenida
FROM opfisc_registro_fiscalizacion
WHERE id_accion_fiscalizacion = $1
  AND id_documento_asociado = $2
  AND activo = 'S'
ORDER BY id DESC
LIMIT 1
`, idAccion, idDocumento).Scan(&p.CodigoDenuncia, &p.OpAduaneraRetenida, &p.OpTransporteRetenida)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select ultimo registro activo")
	}
	return &p, nil
}
