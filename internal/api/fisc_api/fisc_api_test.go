package fisc_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AduanaTI/fiscbox/internal/models"
	"github.com/AduanaTI/fiscbox/internal/services/fiscalizacion"
	"github.com/AduanaTI/fiscbox/internal/services/registro"
	"github.com/AduanaTI/fiscbox/internal/storage/pgfisc"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type repoFake struct {
	documentos map[int64]*models.Documento
	acciones   map[int64]*models.AccionFiscalizacion
	catalogo   []*models.ResultadoDisponible
	historicos []*models.RegistroHistorico
	previo     *models.RegistroPrevio

	registroActivo *models.RegistroActivo
	desactivadas   int64

	creados    []pgfisc.RegistroNuevo
	resultados []pgfisc.ResultadoNuevo
}

func (r *repoFake) GetDocumento(ctx context.Context, id int64) (*models.Documento, error) {
	return r.documentos[id], nil
}

func (r *repoFake) GetAccionActivaPorDocumento(ctx context.Context, id int64) (*models.AccionFiscalizacion, error) {
	return r.acciones[id], nil
}

func (r *repoFake) ListResultadosDisponibles(ctx context.Context, codigoTipo string) ([]*models.ResultadoDisponible, error) {
	return r.catalogo, nil
}

func (r *repoFake) ListRegistrosHistoricos(ctx context.Context, idAccion int64) ([]*models.RegistroHistorico, error) {
	return r.historicos, nil
}

func (r *repoFake) GetUltimoRegistroActivo(ctx context.Context, idAccion, idDocumento int64) (*models.RegistroPrevio, error) {
	return r.previo, nil
}

func (r *repoFake) CrearRegistro(ctx context.Context, in pgfisc.RegistroNuevo) (int64, error) {
	r.creados = append(r.creados, in)
	return int64(len(r.creados)), nil
}

func (r *repoFake) CrearResultadoAccion(ctx context.Context, in pgfisc.ResultadoNuevo) (int64, error) {
	r.resultados = append(r.resultados, in)
	return int64(len(r.resultados)), nil
}

func (r *repoFake) GetDescripcionResultado(ctx context.Context, codigo string) (string, bool, error) {
	if codigo == "CNF" {
		return "Conforme", true, nil
	}
	return "", false, nil
}

func (r *repoFake) ActualizarRetencionesAccion(ctx context.Context, idAccion int64, opAduanera, opTransporte string) error {
	return nil
}

func (r *repoFake) BuscarRegistroActivo(ctx context.Context, idRegistro, idAccion int64) (*models.RegistroActivo, error) {
	if r.registroActivo != nil && r.registroActivo.ID == idRegistro && r.registroActivo.IDAccionFiscalizacion == idAccion {
		return r.registroActivo, nil
	}
	return nil, nil
}

func (r *repoFake) DesactivarRegistro(ctx context.Context, idRegistro, idAccion int64, fecha time.Time) (int64, error) {
	return r.desactivadas, nil
}

type limiterFake struct {
	allowed bool
	calls   int
}

func (l *limiterFake) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	l.calls++
	return l.allowed, 1, nil
}

func newTestServer(t *testing.T, repo *repoFake, limiter RateLimiter, limit int64) *httptest.Server {
	t.Helper()
	api := New(fiscalizacion.New(repo), registro.New(repo, nil, ""), limiter, limit)
	r := chi.NewRouter()
	api.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestPrepararIndividual_SinAccionActiva(t *testing.T) {
	repo := &repoFake{
		documentos: map[int64]*models.Documento{
			5: {ID: 5, NumeroDocumento: "GA-0005", CodigoTipoDocumento: "GA"},
		},
		acciones: map[int64]*models.AccionFiscalizacion{},
	}
	srv := newTestServer(t, repo, nil, 0)

	resp := postJSON(t, srv.URL+"/api/fiscalizacion/preparar-registro-individual",
		prepararIndividualRequest{IDGuia: 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body prepararIndividualResponse
	decodeBody(t, resp, &body)
	require.Equal(t, int64(5), body.Guia.ID)
	require.Nil(t, body.AccionFiscalizacion)
	require.Nil(t, body.TipoFiscalizacion)
	require.Nil(t, body.Solicitante)
	require.Empty(t, body.ResultadosDisponibles)
	require.Empty(t, body.RegistrosHistoricos)
	require.Equal(t, "N", body.DatosIniciales.OpAduaneraRetenida)
}

func TestPrepararIndividual_ConAccion(t *testing.T) {
	plan := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	repo := &repoFake{
		documentos: map[int64]*models.Documento{
			5: {ID: 5, NumeroDocumento: "GA-0005", CodigoTipoDocumento: "GA"},
		},
		acciones: map[int64]*models.AccionFiscalizacion{
			5: {ID: 7, NombreSolicitante: "JUAN PEREZ", FechaPlanificada: &plan, TipoCodigo: "DOC", TipoNombre: "Documental"},
		},
		catalogo: []*models.ResultadoDisponible{
			{Codigo: "CNF", Descripcion: "Conforme", LiberaOpAduanera: "S", LiberaOpTransporte: "S"},
		},
		historicos: []*models.RegistroHistorico{
			{IDRegistro: 1, FechaEjecucion: plan, FechaActiva: "03-02-2026 10:15", Resultados: "Conforme", Observaciones: "ok"},
		},
	}
	srv := newTestServer(t, repo, nil, 0)

	resp := postJSON(t, srv.URL+"/api/fiscalizacion/preparar-registro-individual",
		prepararIndividualRequest{IDGuia: 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body prepararIndividualResponse
	decodeBody(t, resp, &body)
	require.NotNil(t, body.AccionFiscalizacion)
	require.Equal(t, int64(7), body.AccionFiscalizacion.ID)
	require.NotNil(t, body.AccionFiscalizacion.FechaPlanificada)
	require.Equal(t, "03/02/2026", *body.AccionFiscalizacion.FechaPlanificada)
	require.NotNil(t, body.Solicitante)
	require.Equal(t, " / JUAN PEREZ", *body.Solicitante)
	require.Len(t, body.RegistrosHistoricos, 1)
	require.Equal(t, "03/02/2026", body.RegistrosHistoricos[0].FechaEjecucion)
	require.Equal(t, "03-02-2026 10:15", body.RegistrosHistoricos[0].FechaSysRegistro)
}

func TestPrepararMultiple_AccionFaltante404(t *testing.T) {
	repo := &repoFake{
		documentos: map[int64]*models.Documento{
			1: {ID: 1, NumeroDocumento: "GA-0001", CodigoTipoDocumento: "GA"},
		},
		acciones: map[int64]*models.AccionFiscalizacion{},
	}
	srv := newTestServer(t, repo, nil, 0)

	resp := postJSON(t, srv.URL+"/api/fiscalizacion/preparar-registro-multiple",
		prepararMultipleRequest{GuiasIDs: []int64{1}})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body errorBody
	decodeBody(t, resp, &body)
	require.Equal(t, http.StatusNotFound, body.StatusCode)
	require.Equal(t, "Not Found", body.Error)
	require.Contains(t, body.Message, "acción de fiscalización activa")
}

func TestPrepararMultiple_SinGuias400(t *testing.T) {
	srv := newTestServer(t, &repoFake{}, nil, 0)

	resp := postJSON(t, srv.URL+"/api/fiscalizacion/preparar-registro-multiple",
		prepararMultipleRequest{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		StatusCode int      `json:"statusCode"`
		Message    []string `json:"message"`
		Error      string   `json:"error"`
	}
	decodeBody(t, resp, &body)
	require.Equal(t, "Bad Request", body.Error)
	require.NotEmpty(t, body.Message)
}

func TestAplicarRegistro_Creado201(t *testing.T) {
	repo := &repoFake{
		acciones: map[int64]*models.AccionFiscalizacion{
			5: {ID: 7, TipoCodigo: "DOC"},
		},
	}
	srv := newTestServer(t, repo, nil, 0)

	obs := "sin novedades"
	resp := postJSON(t, srv.URL+"/api/fiscalizacion/aplicar-registro", aplicarRegistroRequest{
		Documentos: []documentoRequestJSON{
			{ID: 5, NumeroDocumento: "GA-0005", CodigoTipoDocumento: "GA"},
			{ID: 9, NumeroDocumento: "GA-0009", CodigoTipoDocumento: "GA"},
		},
		ResultadosIngresados: []resultadoIngresadoJSON{{CodigoResultado: "CNF", Observacion: &obs}},
		IDEjecutante:         15,
		NombreEjecutante:     "MARIA SOTO",
		OpAduaneraRetenida:   true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body aplicarRegistroResponse
	decodeBody(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, 1, body.RegistrosCreados)
	require.Len(t, body.Registros, 1)
	require.Equal(t, []int64{9}, body.DocumentosOmitidos)

	reg := body.Registros[0]
	require.Equal(t, int64(7), reg.IDAccionFiscalizacion)
	require.Equal(t, "S", reg.OpAduaneraRetenida)
	require.Equal(t, "N", reg.OpTransporteRetenida)
	require.Equal(t, "VIS", reg.EstadoDocumento)
	require.Len(t, reg.Resultados, 1)
	require.Equal(t, "Conforme", reg.Resultados[0].Descripcion)
}

func TestAplicarRegistro_SinResultados400(t *testing.T) {
	repo := &repoFake{}
	srv := newTestServer(t, repo, nil, 0)

	resp := postJSON(t, srv.URL+"/api/fiscalizacion/aplicar-registro", aplicarRegistroRequest{
		Documentos:       []documentoRequestJSON{{ID: 5, NumeroDocumento: "GA-0005"}},
		IDEjecutante:     15,
		NombreEjecutante: "MARIA SOTO",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, repo.creados)
}

func TestAplicarRegistro_Limitado429(t *testing.T) {
	lim := &limiterFake{allowed: false}
	srv := newTestServer(t, &repoFake{}, lim, 30)

	resp := postJSON(t, srv.URL+"/api/fiscalizacion/aplicar-registro", aplicarRegistroRequest{
		Documentos:           []documentoRequestJSON{{ID: 5, NumeroDocumento: "GA-0005"}},
		ResultadosIngresados: []resultadoIngresadoJSON{{CodigoResultado: "CNF"}},
		IDEjecutante:         15,
		NombreEjecutante:     "MARIA SOTO",
	})
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, 1, lim.calls)

	var body errorBody
	decodeBody(t, resp, &body)
	require.Equal(t, "Too Many Requests", body.Error)
}

func TestEliminarRegistro_OK(t *testing.T) {
	repo := &repoFake{
		registroActivo: &models.RegistroActivo{ID: 2, IDAccionFiscalizacion: 7, NumeroDocAsociado: "GA-0005"},
		desactivadas:   1,
	}
	srv := newTestServer(t, repo, nil, 0)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/fiscalizacion/registros/2/7", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body eliminarRegistroResponse
	decodeBody(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, int64(2), body.IDRegistroEliminado)
	require.Equal(t, int64(7), body.IDAccionFiscalizacion)
	require.Equal(t, "GA-0005", body.NumeroDocAsociado)
	require.False(t, body.FechaEliminacion.IsZero())
}

func TestEliminarRegistro_AccionEquivocada404(t *testing.T) {
	repo := &repoFake{
		registroActivo: &models.RegistroActivo{ID: 2, IDAccionFiscalizacion: 7, NumeroDocAsociado: "GA-0005"},
	}
	srv := newTestServer(t, repo, nil, 0)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/fiscalizacion/registros/2/99", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestEliminarRegistro_ParametroInvalido400(t *testing.T) {
	srv := newTestServer(t, &repoFake{}, nil, 0)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/fiscalizacion/registros/abc/7", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
