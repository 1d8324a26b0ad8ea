package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/service"
)

const (
	multipartMemory   = 32 << 20
	heartbeatInterval = 15 * time.Second
)

type connectRequest struct {
	ConnectionString string `json:"connection_string"`
}

type connectResponse struct {
	Status  string               `json:"status"`
	Message string               `json:"message"`
	Schema  domain.SchemaSummary `json:"schema"`
}

type uploadResponse struct {
	JobID      string           `json:"job_id"`
	Status     domain.JobStatus `json:"status"`
	TotalFiles int              `json:"total_files"`
	Message    string           `json:"message"`
}

// handleConnectDatabase discovers the schema behind a connection string
// given as a form field or a JSON body.
func (s *Server) handleConnectDatabase() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connString, err := connectionStringFrom(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		g, err := s.discovery.Discover(r.Context(), connString)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		msg := "Database connected successfully"
		if len(g.Tables) == 0 {
			msg = "Database connected but no tables were found"
		}
		writeJSON(w, http.StatusOK, connectResponse{
			Status:  "success",
			Message: msg,
			Schema:  domain.Summarize(g),
		})
	}
}

func connectionStringFrom(r *http.Request) (string, error) {
	var cs string
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", domain.Errorf(domain.KindInvalidInput, "invalid request body")
		}
		cs = req.ConnectionString
	} else {
		cs = r.FormValue("connection_string")
	}
	cs = strings.TrimSpace(cs)
	if cs == "" {
		return "", domain.Errorf(domain.KindInvalidInput, "connection_string is required")
	}
	return cs, nil
}

// handleUploadDocuments queues multipart "files" for ingestion. Optional
// "employee_id" values are given once for all files or once per file.
func (s *Server) handleUploadDocuments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, r, domain.Errorf(domain.KindInvalidInput, "upload exceeds %d bytes", tooLarge.Limit))
				return
			}
			s.writeError(w, r, domain.Errorf(domain.KindInvalidInput, "expected a multipart form with files"))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		files, err := uploadedFiles(r.MultipartForm)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		job, err := s.ingestion.Submit(r.Context(), files)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, uploadResponse{
			JobID:      job.ID,
			Status:     job.Status,
			TotalFiles: job.TotalFiles,
			Message:    fmt.Sprintf("Started processing %d files", job.TotalFiles),
		})
	}
}

func uploadedFiles(form *multipart.Form) ([]service.UploadedFile, error) {
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "no files uploaded")
	}
	ids := form.Value["employee_id"]
	if len(ids) > 1 && len(ids) != len(headers) {
		return nil, domain.Errorf(domain.KindInvalidInput,
			"got %d employee_id values for %d files; send one for all or one per file", len(ids), len(headers))
	}

	files := make([]service.UploadedFile, 0, len(headers))
	for i, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, domain.NewError(domain.KindInvalidInput, fmt.Sprintf("reading %s", fh.Filename), err)
		}
		f := service.UploadedFile{Filename: fh.Filename, Data: data}
		switch len(ids) {
		case 0:
		case 1:
			f.EmployeeID = strings.TrimSpace(ids[0])
		default:
			f.EmployeeID = strings.TrimSpace(ids[i])
		}
		files = append(files, f)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleJobStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.ingestion.Get(r.Context(), chi.URLParam(r, "job_id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// handleJobEvents streams job snapshots as server-sent events until the job
// reaches a terminal state or the client goes away.
func (s *Server) handleJobEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			s.writeError(w, r, errors.New("streaming unsupported"))
			return
		}

		updates, stop, err := s.ingestion.Watch(r.Context(), chi.URLParam(r, "job_id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		defer stop()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case job, ok := <-updates:
				if !ok {
					return
				}
				data, err := json.Marshal(job)
				if err != nil {
					return
				}
				_, _ = fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
				flusher.Flush()
			case <-heartbeat.C:
				_, _ = io.WriteString(w, ": keep-alive\n\n")
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}
}
