// Package server contains misc server utilities.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
)

// MethodPath is an HTTP method and a chi route pattern
type MethodPath struct {
	Method, Path string
}

// String formats as "METHOD /path"
func (mp MethodPath) String() string {
	return mp.Method + " " + mp.Path
}

// RouteTable maps endpoints to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists the endpoints in the table, sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.String())
	}
	sort.Strings(routes)
	return routes
}

// Bind binds every route in the table to r, plus GET /endpoints which lists
// them
func (rt RouteTable) Bind(r chi.Router) {
	for k, v := range rt {
		r.MethodFunc(k.Method, k.Path, v)
	}
	r.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(rt.Endpoints())
		if err != nil {
			fstr := fmt.Sprintf("error encoding list of routes data to json %q", err)
			log.Println(fstr)
			http.Error(w, fstr, http.StatusInternalServerError)
		}
	})
}

// HTTPer is something that exposes a route table
type HTTPer interface {
	RT() RouteTable
}

// HumanPayload is a typed single value replied to a client as
// {"bool": v}, {"f64": v}, {"int": v} or {"str": v}
type HumanPayload struct {
	// T selects which field is sent
	T types.BasicKind

	Bool   bool
	Float  float64
	Int    int
	String string
}

// EncodeAndRespond encodes the payload to JSON and writes it to w.  Errors are
// logged and replied with status 500.
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Bool:
		v = BoolT{Bool: hp.Bool}
	case types.Float64:
		v = FloatT{F64: hp.Float}
	case types.Int:
		v = IntT{Int: hp.Int}
	case types.String:
		v = StrT{Str: hp.String}
	default:
		http.Error(w, fmt.Sprintf("unsupported payload kind %v", hp.T), http.StatusInternalServerError)
		return
	}
	EncodeAndRespond(w, v)
}

// EncodeAndRespond writes v to w as JSON with status 200.  Errors are logged
// and replied with status 500.
func EncodeAndRespond(w http.ResponseWriter, v interface{}) {
	buf, err := json.Marshal(v)
	if err != nil {
		fstr := fmt.Sprintf("error encoding data to json %q", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(buf)
}

// BoolT is a struct with a single bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// FloatT is a struct with a single float field
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field
type StrT struct {
	Str string `json:"str"`
}
