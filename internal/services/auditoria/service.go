// Package auditoria proyecta los eventos de registro publicados en el broker
// a la tabla de auditoría.
package auditoria

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/AduanaTI/fiscbox/internal/broker/messages"
	"github.com/AduanaTI/fiscbox/internal/storage/pgfisc"
	"github.com/pkg/errors"
)

type Repository interface {
	InsertAuditoria(ctx context.Context, ev pgfisc.EventoAuditoria) error
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

// HandleEvento es el handler del consumidor. Un mensaje que no parsea se
// descarta con warning: reintentarlo nunca va a funcionar.
func (s *Service) HandleEvento(ctx context.Context, key, value []byte) error {
	var ev messages.RegistroEvento
	if err := json.Unmarshal(value, &ev); err != nil {
		slog.Warn("evento de registro ilegible, se descarta", "key", string(key), "err", err)
		return nil
	}

	row := pgfisc.EventoAuditoria{
		Evento:                ev.Evento,
		IDRegistro:            ev.IDRegistro,
		IDAccionFiscalizacion: ev.IDAccionFiscalizacion,
		NumeroDocAsociado:     ev.NumeroDocAsociado,
		Fecha:                 ev.Fecha,
	}
	if ev.IDEjecutante != 0 {
		row.IDEjecutante = &ev.IDEjecutante
	}
	if ev.NombreEjecutante != "" {
		row.NombreEjecutante = &ev.NombreEjecutante
	}

	if err := s.repo.InsertAuditoria(ctx, row); err != nil {
		return errors.Wrap(err, "proyectar evento de auditoria")
	}
	return nil
}
