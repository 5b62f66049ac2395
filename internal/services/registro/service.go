// Package registro implementa el alta y el borrado lógico de registros de
// fiscalización: resolver la acción activa de cada documento, numerar el
// registro dentro de la acción, insertar sus resultados y actualizar las
// retenciones de la acción.
package registro

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AduanaTI/fiscbox/internal/apperrors"
	"github.com/AduanaTI/fiscbox/internal/broker/messages"
	"github.com/AduanaTI/fiscbox/internal/models"
	"github.com/AduanaTI/fiscbox/internal/storage/pgfisc"
	"github.com/pkg/errors"
)

// EstadoDocumentoVisado se informa en la respuesta de alta. El cambio de
// estado del documento en sí quedó deshabilitado en el monolito y sigue
// deshabilitado aquí.
const EstadoDocumentoVisado = "VIS"

// maxObservacion es el largo de columna; el exceso se trunca sin error.
const maxObservacion = 255

type Repository interface {
	GetAccionActivaPorDocumento(ctx context.Context, idDocumento int64) (*models.AccionFiscalizacion, error)
	CrearRegistro(ctx context.Context, in pgfisc.RegistroNuevo) (int64, error)
	CrearResultadoAccion(ctx context.Context, in pgfisc.ResultadoNuevo) (int64, error)
	GetDescripcionResultado(ctx context.Context, codigo string) (string, bool, error)
	ActualizarRetencionesAccion(ctx context.Context, idAccion int64, opAduanera, opTransporte string) error
	BuscarRegistroActivo(ctx context.Context, idRegistro, idAccion int64) (*models.RegistroActivo, error)
	DesactivarRegistro(ctx context.Context, idRegistro, idAccion int64, fecha time.Time) (int64, error)
}

// Publisher publica eventos de auditoría. La publicación es al mejor
// esfuerzo: un fallo del broker se registra y no altera la petición.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Service struct {
	repo     Repository
	producer Publisher
	topic    string
}

// New arma el servicio. producer puede ser nil (auditoría deshabilitada).
func New(repo Repository, producer Publisher, topic string) *Service {
	return &Service{repo: repo, producer: producer, topic: topic}
}

type DocumentoObjetivo struct {
	ID                  int64
	NumeroDocumento     string
	CodigoTipoDocumento string
}

type ResultadoIngresado struct {
	CodigoResultado string
	Observacion     *string
}

type AplicarInput struct {
	Documentos           []DocumentoObjetivo
	Resultados           []ResultadoIngresado
	CodigoDenuncia       *string
	IDEjecutante         int64
	NombreEjecutante     string
	OpAduaneraRetenida   bool
	OpTransporteRetenida bool
}

type ResultadoAplicado struct {
	Codigo      string
	Descripcion string
	Observacion *string
}

type RegistroCreado struct {
	ID                    int64
	IDAccionFiscalizacion int64
	NumeroDocAsociado     string
	CodigoTipoDocumento   string
	FechaEjecucion        time.Time
	FechaRegistroSistema  time.Time
	OpAduaneraRetenida    string
	OpTransporteRetenida  string
	EstadoDocumento       string
	CodigoDenuncia        *string
	Resultados            []ResultadoAplicado
}

type AplicarResult struct {
	Registros []*RegistroCreado
	// DocumentosOmitidos lista los documentos saltados por no tener acción
	// de fiscalización activa. El salto silencioso viene del monolito; aquí
	// al menos queda visible en la respuesta.
	DocumentosOmitidos []int64
}

type Eliminacion struct {
	IDRegistro            int64
	IDAccionFiscalizacion int64
	NumeroDocAsociado     string
	FechaEliminacion      time.Time
}

// Aplicar crea un registro por documento con los mismos resultados, denuncia
// y retenciones para todos. Cada documento confirma sus escrituras por
// separado: un fallo a mitad de lote aborta la petición completa pero no
// revierte los documentos ya procesados.
func (s *Service) Aplicar(ctx context.Context, in AplicarInput) (*AplicarResult, error) {
	if len(in.Documentos) == 0 {
		return nil, apperrors.Validation("debe seleccionar al menos un documento")
	}
	if len(in.Resultados) == 0 {
		return nil, apperrors.Validation("debe ingresar al menos un resultado en el registro")
	}
	if in.IDEjecutante == 0 {
		return nil, apperrors.Validation("idEjecutante es requerido")
	}
	if in.NombreEjecutante == "" {
		return nil, apperrors.Validation("nombreEjecutante es requerido")
	}

	opAduanera := flag(in.OpAduaneraRetenida)
	opTransporte := flag(in.OpTransporteRetenida)
	fecha := time.Now().UTC()

	out := &AplicarResult{}

	for _, doc := range in.Documentos {
		accion, err := s.repo.GetAccionActivaPorDocumento(ctx, doc.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "error procesando documento %s", doc.NumeroDocumento)
		}
		if accion == nil {
			slog.Warn("documento sin acción de fiscalización activa, se omite",
				"idDocumento", doc.ID, "numeroDocumento", doc.NumeroDocumento)
			out.DocumentosOmitidos = append(out.DocumentosOmitidos, doc.ID)
			continue
		}

		registroID, err := s.repo.CrearRegistro(ctx, pgfisc.RegistroNuevo{
			IDAccionFiscalizacion: accion.ID,
			NumeroDocAsociado:     doc.NumeroDocumento,
			CodigoTipoDocumento:   doc.CodigoTipoDocumento,
			IDDocumentoAsociado:   doc.ID,
			FechaEjecucion:        fecha,
			OpAduaneraRetenida:    opAduanera,
			OpTransporteRetenida:  opTransporte,
			IDEjecutante:          in.IDEjecutante,
			NombreEjecutante:      in.NombreEjecutante,
			CodigoDenuncia:        in.CodigoDenuncia,
			FechaActiva:           fecha,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "error procesando documento %s", doc.NumeroDocumento)
		}

		aplicados := make([]ResultadoAplicado, 0, len(in.Resultados))
		for _, res := range in.Resultados {
			obs := truncarObservacion(res.Observacion)
			if _, err := s.repo.CrearResultadoAccion(ctx, pgfisc.ResultadoNuevo{
				IDRegistroFiscalizacion: registroID,
				IDAccionFiscalizacion:   accion.ID,
				CodigoResultado:         res.CodigoResultado,
				Observacion:             obs,
				FechaActivo:             fecha,
			}); err != nil {
				return nil, errors.Wrapf(err, "error procesando documento %s", doc.NumeroDocumento)
			}

			desc, ok, err := s.repo.GetDescripcionResultado(ctx, res.CodigoResultado)
			if err != nil {
				return nil, errors.Wrapf(err, "error procesando documento %s", doc.NumeroDocumento)
			}
			if !ok {
				desc = res.CodigoResultado
			}
			aplicados = append(aplicados, ResultadoAplicado{
				Codigo:      res.CodigoResultado,
				Descripcion: desc,
				Observacion: obs,
			})
		}

		if err := s.repo.ActualizarRetencionesAccion(ctx, accion.ID, opAduanera, opTransporte); err != nil {
			return nil, errors.Wrapf(err, "error procesando documento %s", doc.NumeroDocumento)
		}

		out.Registros = append(out.Registros, &RegistroCreado{
			ID:                    registroID,
			IDAccionFiscalizacion: accion.ID,
			NumeroDocAsociado:     doc.NumeroDocumento,
			CodigoTipoDocumento:   doc.CodigoTipoDocumento,
			FechaEjecucion:        fecha,
			FechaRegistroSistema:  fecha,
			OpAduaneraRetenida:    opAduanera,
			OpTransporteRetenida:  opTransporte,
			EstadoDocumento:       EstadoDocumentoVisado,
			CodigoDenuncia:        in.CodigoDenuncia,
			Resultados:            aplicados,
		})

		s.publicar(ctx, messages.RegistroEvento{
			Evento:                messages.EventoRegistroAplicado,
			IDRegistro:            registroID,
			IDAccionFiscalizacion: accion.ID,
			NumeroDocAsociado:     doc.NumeroDocumento,
			IDEjecutante:          in.IDEjecutante,
			NombreEjecutante:      in.NombreEjecutante,
			Fecha:                 fecha,
		})

		slog.Info("registro de fiscalización creado",
			"idRegistro", registroID, "idAccion", accion.ID, "numeroDocumento", doc.NumeroDocumento)
	}

	return out, nil
}

// Eliminar hace el borrado lógico por clave compuesta. El registro debe
// existir, pertenecer a la acción indicada y seguir activo; el update vuelve
// a comprobar activo='S' para cubrir la carrera con otra eliminación. Los
// resultados asociados nunca se tocan.
func (s *Service) Eliminar(ctx context.Context, idRegistro, idAccion int64) (*Eliminacion, error) {
	reg, err := s.repo.BuscarRegistroActivo(ctx, idRegistro, idAccion)
	if err != nil {
		return nil, errors.Wrap(err, "buscar registro activo")
	}
	if reg == nil {
		return nil, apperrors.NotFound(
			"el registro de fiscalización con ID %d y acción %d no existe o ya fue eliminado",
			idRegistro, idAccion)
	}

	fecha := time.Now().UTC()
	affected, err := s.repo.DesactivarRegistro(ctx, idRegistro, idAccion, fecha)
	if err != nil {
		return nil, errors.Wrap(err, "desactivar registro")
	}
	if affected == 0 {
		return nil, apperrors.NotFound(
			"no se pudo eliminar el registro %d (acción %d), puede que ya esté eliminado",
			idRegistro, idAccion)
	}

	s.publicar(ctx, messages.RegistroEvento{
		Evento:                messages.EventoRegistroEliminado,
		IDRegistro:            idRegistro,
		IDAccionFiscalizacion: idAccion,
		NumeroDocAsociado:     reg.NumeroDocAsociado,
		Fecha:                 fecha,
	})

	slog.Info("registro de fiscalización eliminado",
		"idRegistro", idRegistro, "idAccion", idAccion)

	return &Eliminacion{
		IDRegistro:            idRegistro,
		IDAccionFiscalizacion: idAccion,
		NumeroDocAsociado:     reg.NumeroDocAsociado,
		FechaEliminacion:      fecha,
	}, nil
}

func (s *Service) publicar(ctx context.Context, ev messages.RegistroEvento) {
	if s.producer == nil || s.topic == "" {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		slog.Error("serializar evento de registro", "err", err)
		return
	}
	key := fmt.Sprintf("%d:%d", ev.IDAccionFiscalizacion, ev.IDRegistro)
	if err := s.producer.Publish(ctx, s.topic, []byte(key), b); err != nil {
		slog.Error("publicar evento de registro", "err", err, "evento", ev.Evento)
	}
}

func flag(b bool) string {
	if b {
		return models.FlagSi
	}
	return models.FlagNo
}

func truncarObservacion(obs *string) *string {
	if obs == nil {
		return nil
	}
	r := []rune(*obs)
	if len(r) <= maxObservacion {
		return obs
	}
	t := string(r[:maxObservacion])
	return &t
}
