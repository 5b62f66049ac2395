// Package fisc_api expone los flujos de fiscalización como endpoints JSON.
// Los nombres de campo del contrato se conservan en español tal como los
// consumen las pantallas existentes.
package fisc_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AduanaTI/fiscbox/internal/apperrors"
	"github.com/AduanaTI/fiscbox/internal/models"
	"github.com/AduanaTI/fiscbox/internal/services/fiscalizacion"
	"github.com/AduanaTI/fiscbox/internal/services/registro"
	"github.com/go-chi/chi/v5"
)

const (
	fechaCorta   = "02/01/2006"
	fechaSistema = "02-01-2006 15:04"
)

// RateLimiter limita las altas de registro por ejecutante. Puede ser nil.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type FiscAPI struct {
	prep    *fiscalizacion.Service
	reg     *registro.Service
	limiter RateLimiter
	// aplicarLimit es el máximo de altas por ejecutante y minuto; 0 desactiva.
	aplicarLimit int64
}

func New(prep *fiscalizacion.Service, reg *registro.Service, limiter RateLimiter, aplicarLimit int64) *FiscAPI {
	return &FiscAPI{prep: prep, reg: reg, limiter: limiter, aplicarLimit: aplicarLimit}
}

func (a *FiscAPI) Routes(r chi.Router) {
	r.Post("/api/fiscalizacion/preparar-registro-multiple", a.prepararMultiple)
	r.Post("/api/fiscalizacion/preparar-registro-individual", a.prepararIndividual)
	r.Post("/api/fiscalizacion/aplicar-registro", a.aplicarRegistro)
	r.Delete("/api/fiscalizacion/registros/{idRegistro}/{idAccionFiscalizacion}", a.eliminarRegistro)
}

type errorBody struct {
	StatusCode int `json:"statusCode"`
	// Message es string salvo en errores de validación, donde es una lista.
	Message any    `json:"message"`
	Error   string `json:"error"`
}

type guiaJSON struct {
	ID                  int64  `json:"id"`
	NumeroDocumento     string `json:"numeroDocumento"`
	CodigoTipoDocumento string `json:"codigoTipoDocumento"`
}

type tipoFiscalizacionJSON struct {
	Codigo      string  `json:"codigo"`
	Nombre      string  `json:"nombre"`
	Descripcion *string `json:"descripcion"`
}

type accionFiscalizacionJSON struct {
	ID                int64   `json:"id"`
	IDSolicitante     *int64  `json:"idSolicitante"`
	NombreSolicitante string  `json:"nombreSolicitante"`
	Descripcion       *string `json:"descripcion"`
	FechaPlanificada  *string `json:"fechaPlanificada"`
	FechaEjecucion    *string `json:"fechaEjecucion"`
}

type resultadoDisponibleJSON struct {
	Codigo             string `json:"codigo"`
	Descripcion        string `json:"descripcion"`
	LiberaOpAduanera   string `json:"liberaOpAduanera"`
	LiberaOpTransporte string `json:"liberaOpTransporte"`
}

type registroHistoricoJSON struct {
	IDRegistro       int64  `json:"idRegistro"`
	FechaEjecucion   string `json:"fechaEjecucion"`
	FechaSysRegistro string `json:"fechaSysRegistro"`
	Resultados       string `json:"resultados"`
	Observaciones    string `json:"observaciones"`
}

type datosInicialesJSON struct {
	NumeroDenuncia       string `json:"numeroDenuncia"`
	OpAduaneraRetenida   string `json:"opAduaneraRetenida"`
	OpTransporteRetenida string `json:"opTransporteRetenida"`
}

type prepararMultipleRequest struct {
	GuiasIDs []int64 `json:"guiasIds"`
}

type prepararMultipleResponse struct {
	Guias                 []guiaJSON                `json:"guias"`
	TipoFiscalizacion     *tipoFiscalizacionJSON    `json:"tipoFiscalizacion"`
	Solicitantes          string                    `json:"solicitantes"`
	ResultadosDisponibles []resultadoDisponibleJSON `json:"resultadosDisponibles"`
	DatosIniciales        datosInicialesJSON        `json:"datosIniciales"`
}

type prepararIndividualRequest struct {
	IDGuia int64 `json:"idGuia"`
}

type prepararIndividualResponse struct {
	Guia                  guiaJSON                  `json:"guia"`
	AccionFiscalizacion   *accionFiscalizacionJSON  `json:"accionFiscalizacion"`
	TipoFiscalizacion     *tipoFiscalizacionJSON    `json:"tipoFiscalizacion"`
	Solicitante           *string                   `json:"solicitante"`
	ResultadosDisponibles []resultadoDisponibleJSON `json:"resultadosDisponibles"`
	RegistrosHistoricos   []registroHistoricoJSON   `json:"registrosHistoricos"`
	DatosIniciales        datosInicialesJSON        `json:"datosIniciales"`
}

type documentoRequestJSON struct {
	ID                  int64  `json:"id"`
	NumeroDocumento     string `json:"numeroDocumento"`
	CodigoTipoDocumento string `json:"codigoTipoDocumento"`
}

type resultadoIngresadoJSON struct {
	CodigoResultado string  `json:"codigoResultado"`
	Observacion     *string `json:"observacion"`
}

type aplicarRegistroRequest struct {
	Documentos           []documentoRequestJSON   `json:"documentos"`
	ResultadosIngresados []resultadoIngresadoJSON `json:"resultadosIngresados"`
	CodigoDenuncia       *string                  `json:"codigoDenuncia"`
	IDEjecutante         int64                    `json:"idEjecutante"`
	NombreEjecutante     string                   `json:"nombreEjecutante"`
	OpAduaneraRetenida   bool                     `json:"opAduaneraRetenida"`
	OpTransporteRetenida bool                     `json:"opTransporteRetenida"`
}

type resultadoAplicadoJSON struct {
	CodigoResultado string  `json:"codigoResultado"`
	Descripcion     string  `json:"descripcion"`
	Observacion     *string `json:"observacion"`
}

type registroCreadoJSON struct {
	IDRegistro            int64                   `json:"idRegistro"`
	IDAccionFiscalizacion int64                   `json:"idAccionFiscalizacion"`
	NumeroDocAsociado     string                  `json:"numeroDocAsociado"`
	CodigoTipoDocumento   string                  `json:"codigoTipoDocumento"`
	FechaEjecucion        string                  `json:"fechaEjecucion"`
	FechaSysRegistro      string                  `json:"fechaSysRegistro"`
	OpAduaneraRetenida    string                  `json:"opAduaneraRetenida"`
	OpTransporteRetenida  string                  `json:"opTransporteRetenida"`
	EstadoDocumento       string                  `json:"estadoDocumento"`
	CodigoDenuncia        *string                 `json:"codigoDenuncia"`
	Resultados            []resultadoAplicadoJSON `json:"resultados"`
}

type aplicarRegistroResponse struct {
	Success            bool                 `json:"success"`
	Message            string               `json:"message"`
	RegistrosCreados   int                  `json:"registrosCreados"`
	Registros          []registroCreadoJSON `json:"registros"`
	DocumentosOmitidos []int64              `json:"documentosOmitidos"`
}

type eliminarRegistroResponse struct {
	Success               bool      `json:"success"`
	Message               string    `json:"message"`
	IDRegistroEliminado   int64     `json:"idRegistroEliminado"`
	FechaEliminacion      time.Time `json:"fechaEliminacion"`
	IDAccionFiscalizacion int64     `json:"idAccionFiscalizacion"`
	NumeroDocAsociado     string    `json:"numeroDocAsociado"`
}

func (a *FiscAPI) prepararMultiple(w http.ResponseWriter, r *http.Request) {
	var req prepararMultipleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "cuerpo de la petición inválido")
		return
	}

	prep, err := a.prep.PrepararMultiple(r.Context(), req.GuiasIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := prepararMultipleResponse{
		Guias:                 toGuias(prep.Guias),
		TipoFiscalizacion:     toTipo(prep.Tipo),
		Solicitantes:          prep.Solicitantes,
		ResultadosDisponibles: toResultadosDisponibles(prep.ResultadosDisponibles),
		DatosIniciales:        toDatosIniciales(prep.DatosIniciales),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *FiscAPI) prepararIndividual(w http.ResponseWriter, r *http.Request) {
	var req prepararIndividualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "cuerpo de la petición inválido")
		return
	}
	if req.IDGuia == 0 {
		writeValidation(w, "idGuia es requerido")
		return
	}

	prep, err := a.prep.PrepararIndividual(r.Context(), req.IDGuia)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := prepararIndividualResponse{
		Guia:                  toGuia(prep.Guia),
		TipoFiscalizacion:     toTipo(prep.Tipo),
		Solicitante:           prep.Solicitante,
		ResultadosDisponibles: toResultadosDisponibles(prep.ResultadosDisponibles),
		RegistrosHistoricos:   toRegistrosHistoricos(prep.RegistrosHistoricos),
		DatosIniciales:        toDatosIniciales(prep.DatosIniciales),
	}
	if prep.Accion != nil {
		resp.AccionFiscalizacion = &accionFiscalizacionJSON{
			ID:                prep.Accion.ID,
			IDSolicitante:     prep.Accion.IDSolicitante,
			NombreSolicitante: prep.Accion.NombreSolicitante,
			Descripcion:       prep.Accion.Descripcion,
			FechaPlanificada:  formatFechaPtr(prep.Accion.FechaPlanificada),
			FechaEjecucion:    formatFechaPtr(prep.Accion.FechaEjecucion),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *FiscAPI) aplicarRegistro(w http.ResponseWriter, r *http.Request) {
	var req aplicarRegistroRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, "cuerpo de la petición inválido")
		return
	}

	if a.limiter != nil && a.aplicarLimit > 0 {
		key := fmt.Sprintf("fisc:aplicar:%d", req.IDEjecutante)
		ok, n, err := a.limiter.Allow(r.Context(), key, a.aplicarLimit, time.Minute)
		if err != nil {
			// El límite es protección, no funcionalidad: si redis falla la
			// petición sigue.
			slog.Error("consultar rate limit", "err", err)
		} else if !ok {
			slog.Warn("alta de registro limitada", "idEjecutante", req.IDEjecutante, "conteo", n)
			writeError(w, http.StatusTooManyRequests,
				"demasiadas altas de registro, reintente en un minuto", "Too Many Requests")
			return
		}
	}

	in := registro.AplicarInput{
		CodigoDenuncia:       req.CodigoDenuncia,
		IDEjecutante:         req.IDEjecutante,
		NombreEjecutante:     req.NombreEjecutante,
		OpAduaneraRetenida:   req.OpAduaneraRetenida,
		OpTransporteRetenida: req.OpTransporteRetenida,
	}
	for _, d := range req.Documentos {
		in.Documentos = append(in.Documentos, registro.DocumentoObjetivo{
			ID:                  d.ID,
			NumeroDocumento:     d.NumeroDocumento,
			CodigoTipoDocumento: d.CodigoTipoDocumento,
		})
	}
	for _, res := range req.ResultadosIngresados {
		in.Resultados = append(in.Resultados, registro.ResultadoIngresado{
			CodigoResultado: res.CodigoResultado,
			Observacion:     res.Observacion,
		})
	}

	result, err := a.reg.Aplicar(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := aplicarRegistroResponse{
		Success:            true,
		Message:            "Registros de fiscalización aplicados exitosamente",
		Registros:          []registroCreadoJSON{},
		DocumentosOmitidos: result.DocumentosOmitidos,
	}
	if resp.DocumentosOmitidos == nil {
		resp.DocumentosOmitidos = []int64{}
	}
	for _, reg := range result.Registros {
		out := registroCreadoJSON{
			IDRegistro:            reg.ID,
			IDAccionFiscalizacion: reg.IDAccionFiscalizacion,
			NumeroDocAsociado:     reg.NumeroDocAsociado,
			CodigoTipoDocumento:   reg.CodigoTipoDocumento,
			FechaEjecucion:        reg.FechaEjecucion.Format(fechaCorta),
			FechaSysRegistro:      reg.FechaRegistroSistema.Format(fechaSistema),
			OpAduaneraRetenida:    reg.OpAduaneraRetenida,
			OpTransporteRetenida:  reg.OpTransporteRetenida,
			EstadoDocumento:       reg.EstadoDocumento,
			CodigoDenuncia:        reg.CodigoDenuncia,
			Resultados:            []resultadoAplicadoJSON{},
		}
		for _, res := range reg.Resultados {
			out.Resultados = append(out.Resultados, resultadoAplicadoJSON{
				CodigoResultado: res.Codigo,
				Descripcion:     res.Descripcion,
				Observacion:     res.Observacion,
			})
		}
		resp.Registros = append(resp.Registros, out)
	}
	resp.RegistrosCreados = len(resp.Registros)
	writeJSON(w, http.StatusCreated, resp)
}

func (a *FiscAPI) eliminarRegistro(w http.ResponseWriter, r *http.Request) {
	idRegistro, err := strconv.ParseInt(chi.URLParam(r, "idRegistro"), 10, 64)
	if err != nil {
		writeValidation(w, "idRegistro debe ser numérico")
		return
	}
	idAccion, err := strconv.ParseInt(chi.URLParam(r, "idAccionFiscalizacion"), 10, 64)
	if err != nil {
		writeValidation(w, "idAccionFiscalizacion debe ser numérico")
		return
	}

	out, err := a.reg.Eliminar(r.Context(), idRegistro, idAccion)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, eliminarRegistroResponse{
		Success:               true,
		Message:               "Registro de fiscalización eliminado exitosamente",
		IDRegistroEliminado:   out.IDRegistro,
		FechaEliminacion:      out.FechaEliminacion,
		IDAccionFiscalizacion: out.IDAccionFiscalizacion,
		NumeroDocAsociado:     out.NumeroDocAsociado,
	})
}

func toGuia(d *models.Documento) guiaJSON {
	return guiaJSON{ID: d.ID, NumeroDocumento: d.NumeroDocumento, CodigoTipoDocumento: d.CodigoTipoDocumento}
}

func toGuias(ds []*models.Documento) []guiaJSON {
	out := make([]guiaJSON, 0, len(ds))
	for _, d := range ds {
		out = append(out, toGuia(d))
	}
	return out
}

func toTipo(t *fiscalizacion.TipoFiscalizacion) *tipoFiscalizacionJSON {
	if t == nil {
		return nil
	}
	return &tipoFiscalizacionJSON{Codigo: t.Codigo, Nombre: t.Nombre, Descripcion: t.Descripcion}
}

func toResultadosDisponibles(rs []*models.ResultadoDisponible) []resultadoDisponibleJSON {
	out := make([]resultadoDisponibleJSON, 0, len(rs))
	for _, r := range rs {
		out = append(out, resultadoDisponibleJSON{
			Codigo:             r.Codigo,
			Descripcion:        r.Descripcion,
			LiberaOpAduanera:   r.LiberaOpAduanera,
			LiberaOpTransporte: r.LiberaOpTransporte,
		})
	}
	return out
}

func toRegistrosHistoricos(hs []*models.RegistroHistorico) []registroHistoricoJSON {
	out := make([]registroHistoricoJSON, 0, len(hs))
	for _, h := range hs {
		out = append(out, registroHistoricoJSON{
			IDRegistro:       h.IDRegistro,
			FechaEjecucion:   h.FechaEjecucion.Format(fechaCorta),
			FechaSysRegistro: h.FechaActiva,
			Resultados:       h.Resultados,
			Observaciones:    h.Observaciones,
		})
	}
	return out
}

func toDatosIniciales(d models.DatosIniciales) datosInicialesJSON {
	return datosInicialesJSON{
		NumeroDenuncia:       d.NumeroDenuncia,
		OpAduaneraRetenida:   d.OpAduaneraRetenida,
		OpTransporteRetenida: d.OpTransporteRetenida,
	}
}

func formatFechaPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(fechaCorta)
	return &s
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("escribir respuesta", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, message any, label string) {
	writeJSON(w, status, errorBody{StatusCode: status, Message: message, Error: label})
}

func writeValidation(w http.ResponseWriter, messages ...string) {
	writeError(w, http.StatusBadRequest, messages, "Bad Request")
}

// writeServiceError mapea la taxonomía de errores del servicio al contrato:
// validación 400 (mensajes en lista), no-encontrado 404, el resto 500 con el
// mensaje envuelto.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Messages, "Bad Request")
		return
	}
	var nerr *apperrors.NotFoundError
	if errors.As(err, &nerr) {
		writeError(w, http.StatusNotFound, nerr.Message, "Not Found")
		return
	}
	slog.Error("error interno", "err", err)
	writeError(w, http.StatusInternalServerError, err.Error(), "Internal Server Error")
}
