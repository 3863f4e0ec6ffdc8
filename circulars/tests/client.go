package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"

	"github.com/edufleetexchange-art/Circularnest/circulars/services"
	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

type uploadFile struct {
	name        string
	contentType string
	data        []byte
}

// Multipart sends fields and an optional file as a multipart/form-data body.
func (r *httpTestRequest) Multipart(fields map[string]string, file *uploadFile) *httpTestRequest {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			panic(err)
		}
	}

	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, file.name))
		header.Set("Content-Type", file.contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			panic(err)
		}
		if _, err := part.Write(file.data); err != nil {
			panic(err)
		}
	}

	if err := writer.Close(); err != nil {
		panic(err)
	}

	r.body = body
	return r.Header("Content-Type", writer.FormDataContentType())
}

type statusError struct {
	method   string
	endpoint string
	status   int
	body     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", e.method, e.endpoint, e.status, e.body)
}

// statusOf returns the http status of a failed request, or 200 if err is nil.
func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.status
	}
	return 0
}

func (r *httpTestRequest) serve() *httptest.ResponseRecorder {
	if r.json != nil {
		body := new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(r.json); err != nil {
			panic(err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	w := httptest.NewRecorder()
	r.api.ServeHTTP(w, req)
	return w
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	w := r.serve()

	if w.Code < 200 || w.Code >= 300 {
		return &statusError{method: r.method, endpoint: r.endpoint, status: w.Code, body: w.Body.String()}
	}

	if result != nil {
		if err := json.NewDecoder(w.Body).Decode(result); err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

// DoRaw returns the response body and headers without decoding.
func (r *httpTestRequest) DoRaw() ([]byte, http.Header, error) {
	w := r.serve()

	if w.Code != http.StatusOK {
		return nil, nil, &statusError{method: r.method, endpoint: r.endpoint, status: w.Code, body: w.Body.String()}
	}

	return w.Body.Bytes(), w.Header(), nil
}

type client struct {
	api       chi.Router
	authToken string
	user      services.UserInfo
}

func (c *client) request(method, endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, method, endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Get(endpoint string) *httpTestRequest {
	return c.request("GET", endpoint)
}

func (c *client) Post(endpoint string) *httpTestRequest {
	return c.request("POST", endpoint)
}

func (c *client) Put(endpoint string) *httpTestRequest {
	return c.request("PUT", endpoint)
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	return c.request("DELETE", endpoint)
}

type authResponse struct {
	Success bool              `json:"success"`
	Token   string            `json:"token"`
	User    services.UserInfo `json:"user"`
}

func (c *client) signup(email, password, institution string) error {
	body := map[string]string{
		"email": email, "password": password, "institutionName": institution,
	}

	var res authResponse
	if err := c.Post("/api/auth/signup").Json(body).Do(&res); err != nil {
		return err
	}

	c.authToken = res.Token
	c.user = res.User
	return nil
}

func (c *client) login(email, password string) error {
	var res authResponse
	err := c.Post("/api/auth/login").Json(map[string]string{"email": email, "password": password}).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res.Token
	c.user = res.User
	return nil
}

func (c *client) me() (services.UserInfo, error) {
	var res struct {
		User services.UserInfo `json:"user"`
	}
	err := c.Get("/api/auth/me").Do(&res)
	return res.User, err
}

func pdfFile(name string, data []byte) *uploadFile {
	return &uploadFile{name: name, contentType: "application/pdf", data: data}
}

type submissionResponse struct {
	PendingUpload services.SubmissionInfo `json:"pendingUpload"`
}

func (c *client) guestUpload(fields map[string]string, file *uploadFile) (services.SubmissionInfo, error) {
	var res submissionResponse
	err := c.Post("/api/pending/guest-upload").Multipart(fields, file).Do(&res)
	return res.PendingUpload, err
}

func (c *client) submit(fields map[string]string, file *uploadFile) (services.SubmissionInfo, error) {
	var res submissionResponse
	err := c.Post("/api/pending/upload").Multipart(fields, file).Do(&res)
	return res.PendingUpload, err
}

func (c *client) listPending(query string) ([]services.SubmissionInfo, error) {
	var res struct {
		PendingUploads []services.SubmissionInfo `json:"pendingUploads"`
	}
	err := c.Get("/api/pending" + query).Do(&res)
	return res.PendingUploads, err
}

func (c *client) approve(submissionId string) (services.CircularInfo, error) {
	var res struct {
		Circular services.CircularInfo `json:"circular"`
	}
	err := c.Put(fmt.Sprintf("/api/pending/%v/approve", submissionId)).Do(&res)
	return res.Circular, err
}

func (c *client) reject(submissionId, notes string) (services.CircularInfo, error) {
	var res struct {
		RejectedCircular services.CircularInfo `json:"rejectedCircular"`
	}
	err := c.Put(fmt.Sprintf("/api/pending/%v/reject", submissionId)).Json(map[string]string{"reviewNotes": notes}).Do(&res)
	return res.RejectedCircular, err
}

func (c *client) deleteSubmission(submissionId string) error {
	return c.Delete(fmt.Sprintf("/api/pending/%v", submissionId)).Do(nil)
}

func (c *client) mySubmissions() ([]services.SubmissionHistoryEntry, error) {
	var res struct {
		PendingUploads []services.SubmissionHistoryEntry `json:"pendingUploads"`
	}
	err := c.Get("/api/pending/my-submissions").Do(&res)
	return res.PendingUploads, err
}

type circularList struct {
	Circulars  []services.CircularInfo `json:"circulars"`
	Pagination struct {
		Total int64 `json:"total"`
		Page  int   `json:"page"`
		Pages int   `json:"pages"`
	} `json:"pagination"`
}

func (c *client) listCirculars(query string) (circularList, error) {
	var res circularList
	err := c.Get("/api/circulars" + query).Do(&res)
	return res, err
}

func (c *client) getCircular(circularId string) (services.CircularInfo, error) {
	var res struct {
		Circular services.CircularInfo `json:"circular"`
	}
	err := c.Get(fmt.Sprintf("/api/circulars/%v", circularId)).Do(&res)
	return res.Circular, err
}

func (c *client) uploadCircular(fields map[string]string, file *uploadFile) (services.CircularInfo, error) {
	var res struct {
		Circular services.CircularInfo `json:"circular"`
	}
	err := c.Post("/api/circulars/upload").Multipart(fields, file).Do(&res)
	return res.Circular, err
}

func (c *client) updateCircular(circularId string, body map[string]interface{}) (services.CircularInfo, error) {
	var res struct {
		Circular services.CircularInfo `json:"circular"`
	}
	err := c.Put(fmt.Sprintf("/api/circulars/%v", circularId)).Json(body).Do(&res)
	return res.Circular, err
}

func (c *client) updateCircularStatus(circularId, status string) (services.CircularInfo, error) {
	var res struct {
		Circular services.CircularInfo `json:"circular"`
	}
	err := c.Put(fmt.Sprintf("/api/circulars/%v/status", circularId)).Json(map[string]string{"status": status}).Do(&res)
	return res.Circular, err
}

func (c *client) deleteCircular(circularId string) error {
	return c.Delete(fmt.Sprintf("/api/circulars/%v", circularId)).Do(nil)
}

func (c *client) download(circularId string) ([]byte, http.Header, error) {
	return c.Get(fmt.Sprintf("/api/circulars/%v/download", circularId)).DoRaw()
}

func (c *client) submissionFile(submissionId string) ([]byte, http.Header, error) {
	return c.Get(fmt.Sprintf("/api/pending/%v/file", submissionId)).DoRaw()
}
