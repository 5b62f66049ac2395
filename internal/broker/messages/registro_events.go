// Package messages define los eventos que fiscbox publica en el broker.
package messages

import "time"

const (
	EventoRegistroAplicado  = "registro.aplicado"
	EventoRegistroEliminado = "registro.eliminado"
)

// RegistroEvento es el evento de auditoría emitido al crear o eliminar un
// registro de fiscalización. Ejecutante solo viene en el alta.
type RegistroEvento struct {
	Evento                string    `json:"evento"`
	IDRegistro            int64     `json:"idRegistro"`
	IDAccionFiscalizacion int64     `json:"idAccionFiscalizacion"`
	NumeroDocAsociado     string    `json:"numeroDocAsociado"`
	IDEjecutante          int64     `json:"idEjecutante,omitempty"`
	NombreEjecutante      string    `json:"nombreEjecutante,omitempty"`
	Fecha                 time.Time `json:"fecha"`
}
