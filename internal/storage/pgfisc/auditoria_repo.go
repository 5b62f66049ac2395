package pgfisc

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// EventoAuditoria es la proyección persistida de un evento de registro
// publicado en el broker.
type EventoAuditoria struct {
	Evento                string
	IDRegistro            int64
	IDAccionFiscalizacion int64
	NumeroDocAsociado     string
	IDEjecutante          *int64
	NombreEjecutante      *string
	Fecha                 time.Time
}

func (s *Storage) InsertAuditoria(ctx context.Context, ev EventoAuditoria) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO opfisc_auditoria (
  evento, id_registro, id_accion_fiscalizacion, numero_doc_asociado,
  id_ejecutante, nombre_ejecutante, fecha
)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		ev.Evento, ev.IDRegistro, ev.IDAccionFiscalizacion, ev.NumeroDocAsociado,
		ev.IDEjecutante, ev.NombreEjecutante, ev.Fecha.UTC(),
	)
	return errors.Wrap(err, "insert auditoria")
}

// CountAuditoria cuenta eventos por tipo; lo usan los tests de integración.
func (s *Storage) CountAuditoria(ctx context.Context, evento string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM opfisc_auditoria WHERE evento = $1`, evento).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count auditoria")
	}
	return n, nil
}
