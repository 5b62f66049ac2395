package pgfisc

import (
	"context"

	"github.com/pkg/errors"
)

// Esquema portado del modelo Oracle heredado. Se mantienen los nombres de
// entidad y la clave primaria compuesta de opfisc_registro_fiscalizacion:
// el id del registro solo es único dentro de su acción.
func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS doc_documento_base (
  id BIGINT PRIMARY KEY,
  numero_externo TEXT NOT NULL,
  tipo_documento TEXT NOT NULL,
  activo CHAR(1) NOT NULL DEFAULT 'S'
)`,
		`
CREATE TABLE IF NOT EXISTS opfisc_operacion (
  id BIGSERIAL PRIMARY KEY,
  descripcion TEXT NULL,
  activa CHAR(1) NOT NULL DEFAULT 'S'
)`,
		`
CREATE TABLE IF NOT EXISTS opfisc_marca (
  id BIGSERIAL PRIMARY KEY,
  id_documento BIGINT NOT NULL,
  id_opfisc_operacion BIGINT NOT NULL REFERENCES opfisc_operacion(id),
  activa CHAR(1) NOT NULL DEFAULT 'S'
)`,
		`CREATE INDEX IF NOT EXISTS idx_opfisc_marca_documento ON opfisc_marca(id_documento)`,
		`
CREATE TABLE IF NOT EXISTS opfisc_tipo_fiscalizacion (
  codigo TEXT PRIMARY KEY,
  nombre TEXT NOT NULL,
  descripcion TEXT NULL,
  activa CHAR(1) NOT NULL DEFAULT 'S'
)`,
		`
CREATE TABLE IF NOT EXISTS opfisc_resultado (
  codigo TEXT PRIMARY KEY,
  descripcion TEXT NOT NULL,
  codigo_tipo_fiscalizacion TEXT NOT NULL REFERENCES opfisc_tipo_fiscalizacion(codigo),
  libera_op_aduanera CHAR(1) NOT NULL DEFAULT 'N',
  libera_op_transporte CHAR(1) NOT NULL DEFAULT 'N',
  activa CHAR(1) NOT NULL DEFAULT 'S'
)`,
		`
CREATE TABLE IF NOT EXISTS opfisc_accion_fiscalizacion (
  id BIGSERIAL PRIMARY KEY,
  id_opfisc_operacion BIGINT NOT NULL REFERENCES opfisc_operacion(id),
  codigo_tipo_fiscalizacion TEXT NOT NULL REFERENCES opfisc_tipo_fiscalizacion(codigo),
  fecha_planificada TIMESTAMPTZ NULL,
  fecha_ejecucion TIMESTAMPTZ NULL,
  id_solicitante BIGINT NULL,
  nombre_solicitante TEXT NOT NULL DEFAULT '',
  descripcion TEXT NULL,
  op_aduanera_retenida CHAR(1) NOT NULL DEFAULT 'N',
  op_transporte_retenida CHAR(1) NOT NULL DEFAULT 'N',
  activa CHAR(1) NOT NULL DEFAULT 'S',
  fecha_activa TIMESTAMPTZ NULL,
  fecha_desactiva TIMESTAMPTZ NULL
)`,
		`
CREATE TABLE IF NOT EXISTS opfisc_registro_fiscalizacion (
  id BIGINT NOT NULL,
  id_accion_fiscalizacion BIGINT NOT NULL REFERENCES opfisc_accion_fiscalizacion(id),
  numero_doc_asociado TEXT NOT NULL,
  codigo_tipo_documento TEXT NOT NULL,
  id_documento_asociado BIGINT NULL,
  identificacion_vehiculo TEXT NOT NULL,
  fecha_ejecucion TIMESTAMPTZ NOT NULL,
  op_aduanera_retenida CHAR(1) NOT NULL,
  op_transporte_retenida CHAR(1) NOT NULL,
  id_ejecutante BIGINT NULL,
  nombre_ejecutante TEXT NULL,
  activo CHAR(1) NOT NULL DEFAULT 'S',
  fecha_activa TIMESTAMPTZ NOT NULL,
  fecha_desactiva TIMESTAMPTZ NOT NULL,
  fecha_modificacion TIMESTAMPTZ NULL,
  codigo_denuncia TEXT NULL,
  total_bultos BIGINT NULL,
  PRIMARY KEY (id, id_accion_fiscalizacion)
)`,
		`CREATE INDEX IF NOT EXISTS idx_opfisc_registro_doc ON opfisc_registro_fiscalizacion(id_accion_fiscalizacion, id_documento_asociado)`,
		`CREATE SEQUENCE IF NOT EXISTS sec_opfisc_resultado_accion`,
		`
CREATE TABLE IF NOT EXISTS opfisc_resultado_accion (
  id BIGINT PRIMARY KEY,
  id_registro_fiscalizacion BIGINT NOT NULL,
  id_accion_fiscalizacion BIGINT NOT NULL,
  codigo_resultado TEXT NOT NULL,
  observacion VARCHAR(255) NULL,
  activo CHAR(1) NOT NULL DEFAULT 'S',
  fecha_activo TIMESTAMPTZ NOT NULL,
  fecha_desactivo TIMESTAMPTZ NOT NULL,
  FOREIGN KEY (id_registro_fiscalizacion, id_accion_fiscalizacion)
    REFERENCES opfisc_registro_fiscalizacion(id, id_accion_fiscalizacion)
)`,
		`CREATE INDEX IF NOT EXISTS idx_opfisc_resultado_accion_registro ON opfisc_resultado_accion(id_accion_fiscalizacion, id_registro_fiscalizacion)`,
		`
CREATE TABLE IF NOT EXISTS opfisc_auditoria (
  id BIGSERIAL PRIMARY KEY,
  evento TEXT NOT NULL,
  id_registro BIGINT NOT NULL,
  id_accion_fiscalizacion BIGINT NOT NULL,
  numero_doc_asociado TEXT NOT NULL DEFAULT '',
  id_ejecutante BIGINT NULL,
  nombre_ejecutante TEXT NULL,
  fecha TIMESTAMPTZ NOT NULL,
  creado_en TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
