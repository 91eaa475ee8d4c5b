package httpapi

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/catalog"
	"github.com/xenking/kart-storefront/internal/coupon"
	"github.com/xenking/kart-storefront/internal/notify"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// response is the success envelope. Notifications are the ones the
// request produced.
type response struct {
	Data          any                `json:"data"`
	Notifications []notificationView `json:"notifications,omitempty"`
}

type notificationView struct {
	Message string      `json:"message"`
	Kind    notify.Kind `json:"kind"`
	Action  string      `json:"action,omitempty"`
}

func notificationViews(ns []notify.Notification) []notificationView {
	if len(ns) == 0 {
		return nil
	}
	out := make([]notificationView, len(ns))
	for i, n := range ns {
		out[i] = notificationView{Message: n.Message, Kind: n.Kind}
		if n.Action != nil {
			out[i].Action = n.Action.Label
		}
	}
	return out
}

type errorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zctx.From(r.Context()).Error("Encode response", zap.Error(err))
		http.Error(w, `{"code":500,"message":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeData(w http.ResponseWriter, r *http.Request, data any, q *notify.Queue) {
	resp := response{Data: data}
	if q != nil {
		resp.Notifications = notificationViews(q.Drain())
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// badRequestError marks client input errors.
type badRequestError struct {
	msg    string
	fields map[string]string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(err, "validate")
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return &badRequestError{msg: "validation failed", fields: fields}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed on '" + fe.Tag() + "' validation"
	}
}

// writeError maps err to a status code. Unknown errors are logged and
// hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		badReq     *badRequestError
		variantErr *catalog.VariantNotFoundError
	)
	resp := errorResponse{Message: err.Error()}
	switch {
	case errors.As(err, &badReq):
		resp.Code = http.StatusBadRequest
		resp.Fields = badReq.fields
	case errors.Is(err, catalog.ErrNotFound), errors.As(err, &variantErr):
		resp.Code = http.StatusNotFound
	case errors.Is(err, coupon.ErrInvalidCoupon):
		resp.Code = http.StatusNotFound
	case errors.Is(err, coupon.ErrCouponExpired), errors.Is(err, coupon.ErrCouponUsageLimitReached):
		resp.Code = http.StatusUnprocessableEntity
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		resp.Code = http.StatusInternalServerError
		resp.Message = "internal error"
	}
	writeJSON(w, r, resp.Code, resp)
}
