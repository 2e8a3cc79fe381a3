package datastore

import (
	"bufio"
	"fmt"
	"hash/crc64"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type serverObject struct {
	data        []byte
	contentType string
	meta        map[string]string
	appendable  bool
	modified    time.Time
}

// objectServer speaks enough of the S3 and OBS object protocols for the
// backends to run their append paths over real HTTP. With obs set it answers
// in the OBS dialect and implements native appends.
type objectServer struct {
	obs bool

	mu        sync.Mutex
	objects   map[string]*serverObject
	requests  int
	beforeGet func(obj *serverObject)
}

func newObjectServer(t *testing.T, obs bool) (*objectServer, string) {
	s := &objectServer{obs: obs, objects: make(map[string]*serverObject)}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts.URL
}

func (s *objectServer) onGet(fn func(obj *serverObject)) {
	s.mu.Lock()
	s.beforeGet = fn
	s.mu.Unlock()
}

func (s *objectServer) object(bucket, key string) *serverObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[bucket+"/"+key]
}

func (s *objectServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket == "" || key == "" {
		s.fail(w, r, http.StatusBadRequest, "InvalidRequest", "bucket and key are required")
		return
	}
	name := bucket + "/" + key

	// Bodies are drained before locking: an emulated append streams the
	// old content from this same server while its PUT is in flight.
	var payload []byte
	if r.Method == http.MethodPut || r.Method == http.MethodPost {
		var err error
		if payload, err = readPayload(r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	switch r.Method {
	case http.MethodPut:
		obj := &serverObject{
			data:        payload,
			contentType: r.Header.Get("Content-Type"),
			meta:        requestMeta(r.Header),
			modified:    time.Now(),
		}
		s.objects[name] = obj
		w.Header().Set("ETag", `"`+etagOf(obj.data)+`"`)
		w.Header().Set(s.header("request-id"), s.requestID())
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		if _, ok := r.URL.Query()["append"]; !ok || !s.obs {
			s.fail(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", "only appends are posted")
			return
		}
		s.append(w, r, name, payload)
	case http.MethodHead, http.MethodGet:
		obj, ok := s.objects[name]
		if !ok {
			s.fail(w, r, http.StatusNotFound, CodeNoSuchKey, "The specified key does not exist.")
			return
		}
		if r.Method == http.MethodGet && s.beforeGet != nil {
			s.beforeGet(obj)
		}
		if match := r.Header.Get("If-Match"); match != "" && strings.Trim(match, `"`) != etagOf(obj.data) {
			s.fail(w, r, http.StatusPreconditionFailed, "PreconditionFailed", "At least one of the pre-conditions you specified did not hold")
			return
		}
		s.writeObjectHeaders(w, obj)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.data)
		}
	case http.MethodDelete:
		delete(s.objects, name)
		w.WriteHeader(http.StatusNoContent)
	default:
		s.fail(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", r.Method)
	}
}

func (s *objectServer) append(w http.ResponseWriter, r *http.Request, name string, payload []byte) {
	position, err := strconv.ParseInt(r.URL.Query().Get("position"), 10, 64)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "InvalidArgument", "bad position")
		return
	}

	obj, exist := s.objects[name]
	if exist && !obj.appendable {
		s.fail(w, r, http.StatusConflict, CodeObjectNotAppendable, MsgObjectNotAppendable+".")
		return
	}
	var length int64
	if exist {
		length = int64(len(obj.data))
	}
	if position != length {
		s.fail(w, r, http.StatusConflict, CodePositionNotEqualToLength, MsgPositionNotEqualToLength+".")
		return
	}

	if !exist {
		obj = &serverObject{
			contentType: r.Header.Get("Content-Type"),
			meta:        requestMeta(r.Header),
			appendable:  true,
		}
		s.objects[name] = obj
	}
	obj.data = append(obj.data, payload...)
	obj.modified = time.Now()

	w.Header().Set("ETag", `"`+etagOf(obj.data)+`"`)
	w.Header().Set("x-obs-next-append-position", strconv.Itoa(len(obj.data)))
	w.Header().Set("x-obs-hash-crc64ecma", strconv.FormatUint(crc64.Checksum(obj.data, crcTable), 10))
	w.Header().Set("x-obs-request-id", s.requestID())
	w.WriteHeader(http.StatusOK)
}

func (s *objectServer) writeObjectHeaders(w http.ResponseWriter, obj *serverObject) {
	h := w.Header()
	h.Set("ETag", `"`+etagOf(obj.data)+`"`)
	h.Set("Last-Modified", obj.modified.UTC().Format(http.TimeFormat))
	h.Set("Content-Type", contentTypeOr(obj.contentType))
	h.Set("Content-Length", strconv.Itoa(len(obj.data)))
	h.Set(s.header("request-id"), s.requestID())
	for k, v := range obj.meta {
		h.Set(s.header("meta-"+k), v)
	}
	if s.obs {
		if obj.appendable {
			h.Set("x-obs-object-type", ObjectTypeAppendable.String())
			h.Set("x-obs-next-append-position", strconv.Itoa(len(obj.data)))
		} else {
			h.Set("x-obs-object-type", ObjectTypeNormal.String())
		}
	}
}

func (s *objectServer) fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := s.requestID()
	w.Header().Set(s.header("request-id"), requestID)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<Error><Code>%s</Code><Message>%s</Message><RequestId>%s</RequestId></Error>`, code, message, requestID)
}

func (s *objectServer) header(name string) string {
	if s.obs {
		return "x-obs-" + name
	}
	return "x-amz-" + name
}

func (s *objectServer) requestID() string {
	return fmt.Sprintf("%016X", s.requests)
}

func requestMeta(h http.Header) map[string]string {
	meta := make(map[string]string)
	for k, v := range h {
		lower := strings.ToLower(k)
		for _, prefix := range []string{"x-amz-meta-", "x-obs-meta-"} {
			if strings.HasPrefix(lower, prefix) && len(v) > 0 {
				meta[k[len(prefix):]] = v[0]
			}
		}
	}
	return meta
}

// readPayload returns the request body, decoding aws-chunked uploads.
func readPayload(r *http.Request) ([]byte, error) {
	if !strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		return io.ReadAll(r.Body)
	}

	var payload []byte
	br := bufio.NewReader(r.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(size, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return payload, nil
		}

		chunk := make([]byte, n)
		if _, err := io.ReadFull(br, chunk); err != nil {
			return nil, err
		}
		payload = append(payload, chunk...)
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}
