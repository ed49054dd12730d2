package document

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/mselway/bookpipe/internal/currency"
	"github.com/mselway/bookpipe/internal/ledger"
)

// multipartUpload builds a multipart body with a file part and extra form
// fields.
func multipartUpload(filename string, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())

	for key, value := range fields {
		Expect(writer.WriteField(key, value)).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())

	return body, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		ocr       *mockRecognizer
		converter *mockConverter
		books     *mockLedger
		exporter  *mockExporter
		service   *Service
		server    *Server
		recorder  *httptest.ResponseRecorder
		request   *http.Request
	)

	BeforeEach(func() {
		ocr = &mockRecognizer{text: "Tech Supplies Ltd 350.00"}
		converter = &mockConverter{rate: decimal.RequireFromString("0.14")}
		books = &mockLedger{}
		exporter = &mockExporter{}
		service = NewService(ocr, converter, books, exporter, Config{
			TargetCurrency:  currency.USD,
			InvoiceDefaults: ledger.Defaults{CustomerID: 12345, Date: "2025-05-17"},
		})
		server = NewServer(service, BasicAuth{})
		recorder = httptest.NewRecorder()
	})

	JustBeforeEach(func() {
		server.ServeHTTP(recorder, request)
	})

	Describe("POST /api/invoices", func() {
		When("uploading an image with a currency", func() {
			BeforeEach(func() {
				body, contentType := multipartUpload("receipt.jpg", "image/jpeg", []byte("fake"), map[string]string{
					"currency": "CNY",
				})
				request = httptest.NewRequest("POST", "/api/invoices", body)
				request.Header.Set("Content-Type", contentType)
			})

			It("should return 200", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
			})

			It("should return the pipeline outcome", func() {
				var outcome InvoiceOutcome
				Expect(json.Unmarshal(recorder.Body.Bytes(), &outcome)).To(Succeed())
				Expect(outcome.Text).To(Equal("Tech Supplies Ltd 350.00"))
				Expect(outcome.Records).To(HaveLen(1))
				Expect(outcome.Records[0].Currency).To(Equal(currency.USD))
				Expect(outcome.Submissions).To(HaveLen(1))
			})
		})

		When("a manual amount override is supplied", func() {
			BeforeEach(func() {
				body, contentType := multipartUpload("receipt.jpg", "image/jpeg", []byte("fake"), map[string]string{
					"currency": "EUR",
					"amount":   "100.00",
				})
				request = httptest.NewRequest("POST", "/api/invoices", body)
				request.Header.Set("Content-Type", contentType)
			})

			It("should convert the override amount", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
				var outcome InvoiceOutcome
				Expect(json.Unmarshal(recorder.Body.Bytes(), &outcome)).To(Succeed())
				Expect(outcome.Records).To(HaveLen(1))
				Expect(outcome.Records[0].Amount.String()).To(Equal("14"))
			})
		})

		When("the amount override is not a number", func() {
			BeforeEach(func() {
				body, contentType := multipartUpload("receipt.jpg", "image/jpeg", []byte("fake"), map[string]string{
					"amount": "lots",
				})
				request = httptest.NewRequest("POST", "/api/invoices", body)
				request.Header.Set("Content-Type", contentType)
			})

			It("should return 400", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})

		When("no file is provided", func() {
			BeforeEach(func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("currency", "USD")).To(Succeed())
				Expect(writer.Close()).To(Succeed())
				request = httptest.NewRequest("POST", "/api/invoices", body)
				request.Header.Set("Content-Type", writer.FormDataContentType())
			})

			It("should return 400 with an error body", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
				var resp map[string]string
				Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
				Expect(resp["error"]).NotTo(BeEmpty())
			})
		})
	})

	Describe("POST /api/statements", func() {
		When("the upload is not a PDF", func() {
			BeforeEach(func() {
				body, contentType := multipartUpload("statement.jpg", "image/jpeg", []byte("fake"), nil)
				request = httptest.NewRequest("POST", "/api/statements", body)
				request.Header.Set("Content-Type", contentType)
			})

			It("should return 400", func() {
				Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/tables", func() {
		When("uploading a csv with an amount column", func() {
			BeforeEach(func() {
				csv := "description,amount\nHosting,100\nDomain,200\n"
				body, contentType := multipartUpload("data.csv", "text/csv", []byte(csv), map[string]string{
					"currency": "CNY",
				})
				request = httptest.NewRequest("POST", "/api/tables", body)
				request.Header.Set("Content-Type", contentType)
			})

			It("should return the augmented table", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
				var outcome TableOutcome
				Expect(json.Unmarshal(recorder.Body.Bytes(), &outcome)).To(Succeed())
				Expect(outcome.Columns).To(Equal([]string{"description", "amount", "converted_amount", "currency"}))
				Expect(outcome.Rows).To(HaveLen(2))
			})
		})

		When("the csv has no amount column", func() {
			BeforeEach(func() {
				csv := "description,total\nHosting,100\n"
				body, contentType := multipartUpload("data.csv", "text/csv", []byte(csv), nil)
				request = httptest.NewRequest("POST", "/api/tables", body)
				request.Header.Set("Content-Type", contentType)
			})

			It("should return 422", func() {
				Expect(recorder.Code).To(Equal(http.StatusUnprocessableEntity))
			})
		})
	})

	Describe("GET /", func() {
		BeforeEach(func() {
			request = httptest.NewRequest("GET", "/", nil)
		})

		It("should serve the HTML interface", func() {
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Header().Get("Content-Type")).To(ContainSubstring("text/html"))
			Expect(recorder.Body.String()).To(ContainSubstring("bookpipe"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			server = NewServer(service, BasicAuth{Username: "user", Password: "pass"})
		})

		When("credentials are missing", func() {
			BeforeEach(func() {
				request = httptest.NewRequest("GET", "/", nil)
			})

			It("should return 401", func() {
				Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
			})
		})

		When("credentials are correct", func() {
			BeforeEach(func() {
				request = httptest.NewRequest("GET", "/", nil)
				request.SetBasicAuth("user", "pass")
			})

			It("should serve the page", func() {
				Expect(recorder.Code).To(Equal(http.StatusOK))
			})
		})
	})
})
