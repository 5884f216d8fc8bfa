package httpadapter

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// The types below follow the layout oapi-codegen emits for a chi server, one
// method per operationId in api/openapi.yaml. Keep them in step with that
// document; TestRoutesMatchOpenAPI fails when they drift.

// GetScanAlertsParams are the query parameters of getScanAlerts.
type GetScanAlertsParams struct {
	Q        *string `form:"q,omitempty" json:"q,omitempty"`
	Severity *string `form:"severity,omitempty" json:"severity,omitempty"`
	Article  *string `form:"article,omitempty" json:"article,omitempty"`
	Status   *string `form:"status,omitempty" json:"status,omitempty"`
	Expr     *string `form:"expr,omitempty" json:"expr,omitempty"`
	Order    *string `form:"order,omitempty" json:"order,omitempty"`
}

// ListWatchlistEntitiesParams are the query parameters of listWatchlistEntities.
type ListWatchlistEntitiesParams struct {
	Sort  *string `form:"sort,omitempty" json:"sort,omitempty"`
	Dir   *string `form:"dir,omitempty" json:"dir,omitempty"`
	Group *bool   `form:"group,omitempty" json:"group,omitempty"`
	Q     *string `form:"q,omitempty" json:"q,omitempty"`
}

// ServerInterface has one handler per operation.
type ServerInterface interface {
	// (GET /healthz)
	GetHealthz(w http.ResponseWriter, r *http.Request)
	// (GET /openapi.yaml)
	GetOpenAPI(w http.ResponseWriter, r *http.Request)
	// (POST /scans)
	StartScan(w http.ResponseWriter, r *http.Request)
	// (GET /scans/{id})
	GetScan(w http.ResponseWriter, r *http.Request, id string)
	// (DELETE /scans/{id})
	CancelScan(w http.ResponseWriter, r *http.Request, id string)
	// (GET /scans/{id}/alerts)
	GetScanAlerts(w http.ResponseWriter, r *http.Request, id string, params GetScanAlertsParams)
	// (GET /scans/{id}/rows)
	GetScanRows(w http.ResponseWriter, r *http.Request, id string)
	// (GET /watchlists/{id}/entities)
	ListWatchlistEntities(w http.ResponseWriter, r *http.Request, id int64, params ListWatchlistEntitiesParams)
	// (POST /watchlists/{id}/entities)
	AddWatchlistEntities(w http.ResponseWriter, r *http.Request, id int64)
	// (POST /entities/{id}/edit)
	BeginTagEdit(w http.ResponseWriter, r *http.Request, id int64)
	// (DELETE /entities/{id}/edit)
	CancelTagEdit(w http.ResponseWriter, r *http.Request, id int64)
	// (PUT /entities/{id}/tag)
	SaveTag(w http.ResponseWriter, r *http.Request, id int64)
	// (POST /chat/suggest)
	SuggestAction(w http.ResponseWriter, r *http.Request)
	// (POST /chat/attach)
	AttachFile(w http.ResponseWriter, r *http.Request)
}

// InvalidParamFormatError reports a parameter that failed to bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return "invalid format for parameter " + e.ParamName + ": " + e.Err.Error()
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// ServerInterfaceWrapper binds parameters and dispatches to the handler.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) pathString(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return "", false
	}
	return v, true
}

func (siw *ServerInterfaceWrapper) pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	var v int64
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return 0, false
	}
	return v, true
}

// bindQuery binds optional form-style query parameters into their targets.
func (siw *ServerInterfaceWrapper) bindQuery(w http.ResponseWriter, r *http.Request, targets map[string]any) bool {
	q := r.URL.Query()
	for name, dst := range targets {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dst); err != nil {
			siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
			return false
		}
	}
	return true
}

func (siw *ServerInterfaceWrapper) GetScan(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathString(w, r, "id"); ok {
		siw.Handler.GetScan(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) CancelScan(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathString(w, r, "id"); ok {
		siw.Handler.CancelScan(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) GetScanAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.pathString(w, r, "id")
	if !ok {
		return
	}
	var params GetScanAlertsParams
	if !siw.bindQuery(w, r, map[string]any{
		"q":        &params.Q,
		"severity": &params.Severity,
		"article":  &params.Article,
		"status":   &params.Status,
		"expr":     &params.Expr,
		"order":    &params.Order,
	}) {
		return
	}
	siw.Handler.GetScanAlerts(w, r, id, params)
}

func (siw *ServerInterfaceWrapper) GetScanRows(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathString(w, r, "id"); ok {
		siw.Handler.GetScanRows(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) ListWatchlistEntities(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.pathInt64(w, r, "id")
	if !ok {
		return
	}
	var params ListWatchlistEntitiesParams
	if !siw.bindQuery(w, r, map[string]any{
		"sort":  &params.Sort,
		"dir":   &params.Dir,
		"group": &params.Group,
		"q":     &params.Q,
	}) {
		return
	}
	siw.Handler.ListWatchlistEntities(w, r, id, params)
}

func (siw *ServerInterfaceWrapper) AddWatchlistEntities(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathInt64(w, r, "id"); ok {
		siw.Handler.AddWatchlistEntities(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) BeginTagEdit(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathInt64(w, r, "id"); ok {
		siw.Handler.BeginTagEdit(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) CancelTagEdit(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathInt64(w, r, "id"); ok {
		siw.Handler.CancelTagEdit(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) SaveTag(w http.ResponseWriter, r *http.Request) {
	if id, ok := siw.pathInt64(w, r, "id"); ok {
		siw.Handler.SaveTag(w, r, id)
	}
}

// HandlerFromMux mounts every operation of si on r.
func HandlerFromMux(si ServerInterface, r chi.Router, errorHandler func(w http.ResponseWriter, r *http.Request, err error)) chi.Router {
	wrapper := ServerInterfaceWrapper{Handler: si, ErrorHandlerFunc: errorHandler}

	r.Get("/healthz", si.GetHealthz)
	r.Get("/openapi.yaml", si.GetOpenAPI)
	r.Post("/scans", si.StartScan)
	r.Get("/scans/{id}", wrapper.GetScan)
	r.Delete("/scans/{id}", wrapper.CancelScan)
	r.Get("/scans/{id}/alerts", wrapper.GetScanAlerts)
	r.Get("/scans/{id}/rows", wrapper.GetScanRows)
	r.Get("/watchlists/{id}/entities", wrapper.ListWatchlistEntities)
	r.Post("/watchlists/{id}/entities", wrapper.AddWatchlistEntities)
	r.Post("/entities/{id}/edit", wrapper.BeginTagEdit)
	r.Delete("/entities/{id}/edit", wrapper.CancelTagEdit)
	r.Put("/entities/{id}/tag", wrapper.SaveTag)
	r.Post("/chat/suggest", si.SuggestAction)
	r.Post("/chat/attach", si.AttachFile)
	return r
}
