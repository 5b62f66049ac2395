package auditoria

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/AduanaTI/fiscbox/internal/broker/messages"
	"github.com/AduanaTI/fiscbox/internal/storage/pgfisc"
	"github.com/stretchr/testify/require"
)

type repoFake struct {
	rows []pgfisc.EventoAuditoria
	err  error
}

func (r *repoFake) InsertAuditoria(ctx context.Context, ev pgfisc.EventoAuditoria) error {
	r.rows = append(r.rows, ev)
	return r.err
}

func TestHandleEvento_ProyectaAplicado(t *testing.T) {
	repo := &repoFake{}
	s := New(repo)

	fecha := time.Date(2026, 3, 9, 15, 4, 0, 0, time.UTC)
	b, err := json.Marshal(messages.RegistroEvento{
		Evento:                messages.EventoRegistroAplicado,
		IDRegistro:            2,
		IDAccionFiscalizacion: 7,
		NumeroDocAsociado:     "GA-0001",
		IDEjecutante:          15,
		NombreEjecutante:      "MARIA SOTO",
		Fecha:                 fecha,
	})
	require.NoError(t, err)

	require.NoError(t, s.HandleEvento(context.Background(), []byte("7:2"), b))
	require.Len(t, repo.rows, 1)

	row := repo.rows[0]
	require.Equal(t, messages.EventoRegistroAplicado, row.Evento)
	require.Equal(t, int64(2), row.IDRegistro)
	require.Equal(t, int64(7), row.IDAccionFiscalizacion)
	require.Equal(t, "GA-0001", row.NumeroDocAsociado)
	require.NotNil(t, row.IDEjecutante)
	require.Equal(t, int64(15), *row.IDEjecutante)
	require.NotNil(t, row.NombreEjecutante)
	require.Equal(t, "MARIA SOTO", *row.NombreEjecutante)
	require.Equal(t, fecha, row.Fecha)
}

func TestHandleEvento_EliminadoSinEjecutante(t *testing.T) {
	repo := &repoFake{}
	s := New(repo)

	b, err := json.Marshal(messages.RegistroEvento{
		Evento:                messages.EventoRegistroEliminado,
		IDRegistro:            1,
		IDAccionFiscalizacion: 7,
		NumeroDocAsociado:     "GA-0001",
		Fecha:                 time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, s.HandleEvento(context.Background(), []byte("7:1"), b))
	require.Len(t, repo.rows, 1)
	require.Nil(t, repo.rows[0].IDEjecutante)
	require.Nil(t, repo.rows[0].NombreEjecutante)
}

func TestHandleEvento_MensajeIlegibleSeDescarta(t *testing.T) {
	repo := &repoFake{}
	s := New(repo)

	require.NoError(t, s.HandleEvento(context.Background(), []byte("k"), []byte("{no json")))
	require.Empty(t, repo.rows)
}

func TestHandleEvento_ErrorDeRepoPropaga(t *testing.T) {
	repo := &repoFake{err: errors.New("db down")}
	s := New(repo)

	b, _ := json.Marshal(messages.RegistroEvento{Evento: messages.EventoRegistroAplicado})
	err := s.HandleEvento(context.Background(), []byte("k"), b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "proyectar evento de auditoria")
}
