// Package fiscalizacion prepara los datos de pantalla para registrar una
// fiscalización: guías, acción activa, catálogo de resultados, histórico y
// valores iniciales del formulario.
package fiscalizacion

import (
	"context"

	"github.com/AduanaTI/fiscbox/internal/apperrors"
	"github.com/AduanaTI/fiscbox/internal/models"
	"github.com/pkg/errors"
)

type Repository interface {
	GetDocumento(ctx context.Context, id int64) (*models.Documento, error)
	GetAccionActivaPorDocumento(ctx context.Context, idDocumento int64) (*models.AccionFiscalizacion, error)
	ListResultadosDisponibles(ctx context.Context, codigoTipo string) ([]*models.ResultadoDisponible, error)
	ListRegistrosHistoricos(ctx context.Context, idAccion int64) ([]*models.RegistroHistorico, error)
	GetUltimoRegistroActivo(ctx context.Context, idAccion, idDocumento int64) (*models.RegistroPrevio, error)
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service {
	return &Service{repo: repo}
}

type TipoFiscalizacion struct {
	Codigo      string
	Nombre      string
	Descripcion *string
}

type PreparacionMultiple struct {
	Guias                 []*models.Documento
	Tipo                  *TipoFiscalizacion
	Solicitantes          string
	ResultadosDisponibles []*models.ResultadoDisponible
	DatosIniciales        models.DatosIniciales
}

type PreparacionIndividual struct {
	Guia                  *models.Documento
	Accion                *models.AccionFiscalizacion
	Tipo                  *TipoFiscalizacion
	Solicitante           *string
	ResultadosDisponibles []*models.ResultadoDisponible
	RegistrosHistoricos   []*models.RegistroHistorico
	DatosIniciales        models.DatosIniciales
}

// PrepararMultiple resuelve cada guía y su acción activa. Falla cerrado: una
// guía sin acción aborta el lote completo con no-encontrado. El tipo de
// fiscalización se toma de la primera guía (se asume igual para todas) y el
// catálogo de resultados se consulta una sola vez con ese tipo.
func (s *Service) PrepararMultiple(ctx context.Context, guiasIDs []int64) (*PreparacionMultiple, error) {
	if len(guiasIDs) == 0 {
		return nil, apperrors.Validation("debe seleccionar al menos una guía")
	}

	guias := make([]*models.Documento, 0, len(guiasIDs))
	solicitantes := make([]string, 0, len(guiasIDs))
	var tipo *TipoFiscalizacion

	for _, id := range guiasIDs {
		guia, err := s.repo.GetDocumento(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "obtener guia")
		}
		if guia == nil {
			return nil, apperrors.NotFound("guía con ID %d no encontrada", id)
		}
		guias = append(guias, guia)

		accion, err := s.repo.GetAccionActivaPorDocumento(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "obtener accion activa")
		}
		if accion == nil {
			return nil, apperrors.NotFound("no se encontró acción de fiscalización activa para guía %d", id)
		}

		if tipo == nil {
			tipo = &TipoFiscalizacion{
				Codigo:      accion.TipoCodigo,
				Nombre:      accion.TipoNombre,
				Descripcion: accion.TipoDescripcion,
			}
		}
		solicitantes = append(solicitantes, accion.NombreSolicitante)
	}

	resultados, err := s.repo.ListResultadosDisponibles(ctx, tipo.Codigo)
	if err != nil {
		return nil, errors.Wrap(err, "obtener resultados disponibles")
	}

	return &PreparacionMultiple{
		Guias:                 guias,
		Tipo:                  tipo,
		Solicitantes:          consolidarSolicitantes(solicitantes),
		ResultadosDisponibles: resultados,
		DatosIniciales:        models.DatosInicialesPorDefecto(),
	}, nil
}

// PrepararIndividual resuelve una guía. Sin acción activa la respuesta es
// igualmente exitosa, con acción/tipo/solicitante nulos y listas vacías. Con
// acción añade catálogo, histórico de la acción y los valores del último
// registro activo de esta guía como datos iniciales.
func (s *Service) PrepararIndividual(ctx context.Context, idGuia int64) (*PreparacionIndividual, error) {
	guia, err := s.repo.GetDocumento(ctx, idGuia)
	if err != nil {
		return nil, errors.Wrap(err, "obtener guia")
	}
	if guia == nil {
		return nil, apperrors.NotFound("guía con ID %d no encontrada", idGuia)
	}

	accion, err := s.repo.GetAccionActivaPorDocumento(ctx, idGuia)
	if err != nil {
		return nil, errors.Wrap(err, "obtener accion activa")
	}
	if accion == nil {
		return &PreparacionIndividual{
			Guia:                  guia,
			ResultadosDisponibles: []*models.ResultadoDisponible{},
			RegistrosHistoricos:   []*models.RegistroHistorico{},
			DatosIniciales:        models.DatosInicialesPorDefecto(),
		}, nil
	}

	resultados, err := s.repo.ListResultadosDisponibles(ctx, accion.TipoCodigo)
	if err != nil {
		return nil, errors.Wrap(err, "obtener resultados disponibles")
	}

	historicos, err := s.repo.ListRegistrosHistoricos(ctx, accion.ID)
	if err != nil {
		return nil, errors.Wrap(err, "obtener registros historicos")
	}

	datos := models.DatosInicialesPorDefecto()
	previo, err := s.repo.GetUltimoRegistroActivo(ctx, accion.ID, idGuia)
	if err != nil {
		return nil, errors.Wrap(err, "obtener ultimo registro")
	}
	if previo != nil {
		if previo.CodigoDenuncia != nil {
			datos.NumeroDenuncia = *previo.CodigoDenuncia
		}
		datos.OpAduaneraRetenida = previo.OpAduaneraRetenida
		datos.OpTransporteRetenida = previo.OpTransporteRetenida
	}

	solicitante := " / " + accion.NombreSolicitante

	return &PreparacionIndividual{
		Guia: guia,
		Accion: accion,
		Tipo: &TipoFiscalizacion{
			Codigo:      accion.TipoCodigo,
			Nombre:      accion.TipoNombre,
			Descripcion: accion.TipoDescripcion,
		},
		Solicitante:           &solicitante,
		ResultadosDisponibles: resultados,
		RegistrosHistoricos:   historicos,
		DatosIniciales:        datos,
	}, nil
}

// consolidarSolicitantes arma el texto de solicitantes de la pantalla: con
// uno solo, " / <nombre>"; con varios, primero los nombres repetidos (una
// vez cada uno) y después los únicos, cada uno precedido de " / ". El orden
// dentro de cada grupo no está especificado.
func consolidarSolicitantes(solicitantes []string) string {
	if len(solicitantes) == 0 {
		return ""
	}
	if len(solicitantes) == 1 {
		return " / " + solicitantes[0]
	}

	conteo := make(map[string]int, len(solicitantes))
	for _, sol := range solicitantes {
		conteo[sol]++
	}

	var repetidos, unicos []string
	for sol, n := range conteo {
		if n > 1 {
			repetidos = append(repetidos, sol)
		} else {
			unicos = append(unicos, sol)
		}
	}

	out := ""
	for _, sol := range repetidos {
		out += " / " + sol
	}
	for _, sol := range unicos {
		out += " / " + sol
	}
	return out
}
