package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mselway/bookpipe/internal/currency"
)

// maxUploadSize bounds multipart form parsing. Phone photos of receipts
// run large.
const maxUploadSize = int64(50 << 20) // 50MB

// handleIndex serves the HTML interface.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the stylesheet.
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the client script.
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// writeError writes a JSON error response with CORS headers set.
func writeError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// uploadFile reads the uploaded file from a multipart form and determines
// its content type, falling back to the filename extension.
func uploadFile(r *http.Request) ([]byte, *multipart.FileHeader, string, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, nil, "", err
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, "", err
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		case ".csv":
			contentType = "text/csv"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	return data, header, contentType, nil
}

// hintCurrency reads the currency form field, defaulting to USD.
func hintCurrency(r *http.Request) currency.Code {
	code := strings.ToUpper(strings.TrimSpace(r.FormValue("currency")))
	if code == "" {
		return currency.USD
	}
	return currency.Code(code)
}

// handleUploadInvoice runs the invoice pipeline: extract, parse, convert,
// submit to the ledger, export to the sheet.
func (s *Server) handleUploadInvoice(w http.ResponseWriter, r *http.Request) {
	data, header, contentType, err := uploadFile(r)
	if err != nil {
		slog.Error("Error reading upload", "error", err)
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}

	req := InvoiceRequest{
		Filename:    header.Filename,
		Data:        data,
		ContentType: contentType,
		Currency:    hintCurrency(r),
		Date:        strings.TrimSpace(r.FormValue("date")),
	}

	if raw := strings.TrimSpace(r.FormValue("amount")); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, "Invalid amount", http.StatusBadRequest)
			return
		}
		req.Amount = &amount
	}
	if raw := strings.TrimSpace(r.FormValue("customer_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, "Invalid customer_id", http.StatusBadRequest)
			return
		}
		req.CustomerID = id
	}

	outcome, err := s.service.ProcessInvoice(r.Context(), req)
	if err != nil {
		slog.Error("Error processing invoice", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, outcome)
}

// handleUploadStatement runs the bank statement pipeline. Statements are
// PDF only; records go to the sheet, not the ledger.
func (s *Server) handleUploadStatement(w http.ResponseWriter, r *http.Request) {
	data, header, contentType, err := uploadFile(r)
	if err != nil {
		slog.Error("Error reading upload", "error", err)
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	if contentType != "application/pdf" {
		writeError(w, "Bank statements must be PDF", http.StatusBadRequest)
		return
	}

	outcome, err := s.service.ProcessStatement(r.Context(), data, hintCurrency(r))
	if err != nil {
		slog.Error("Error processing statement", "filename", header.Filename, "error", err)
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, outcome)
}

// handleUploadTable runs the CSV pipeline.
func (s *Server) handleUploadTable(w http.ResponseWriter, r *http.Request) {
	data, header, _, err := uploadFile(r)
	if err != nil {
		slog.Error("Error reading upload", "error", err)
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}

	outcome, err := s.service.ProcessTable(r.Context(), bytes.NewReader(data), hintCurrency(r))
	if err != nil {
		slog.Error("Error processing csv", "filename", header.Filename, "error", err)
		status := http.StatusBadRequest
		if errors.Is(err, ErrNoAmountColumn) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, err.Error(), status)
		return
	}

	writeJSON(w, outcome)
}
