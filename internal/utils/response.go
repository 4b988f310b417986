package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentTypeMsgpack is the media type clients send in Accept to get
// MessagePack instead of JSON.
const ContentTypeMsgpack = "application/msgpack"

// maxBodyBytes caps request bodies accepted by DecodeJSON.
const maxBodyBytes = 1 << 20

// AcceptsMsgpack reports whether the request asks for MessagePack.
func AcceptsMsgpack(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, ContentTypeMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

// WriteResponse encodes data as MessagePack when the client accepts it,
// JSON otherwise. Struct fields use their json tags in both encodings.
func WriteResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) error {
	if r != nil && AcceptsMsgpack(r) {
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.WriteHeader(status)
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		return enc.Encode(data)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes {"error": message} with the given status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) error {
	return WriteResponse(w, r, status, map[string]string{"error": message})
}

// DecodeJSON decodes a bounded JSON request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// Finite returns a pointer to v, or nil when v is NaN or infinite, so
// undefined values encode as null.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
