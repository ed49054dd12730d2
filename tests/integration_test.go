package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mselway/bookpipe/internal/currency"
	"github.com/mselway/bookpipe/internal/document"
	"github.com/mselway/bookpipe/internal/ledger"
	"github.com/mselway/bookpipe/internal/sheet"
)

func TestIntegration(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Integration Suite")
}

// MockRecognizer stands in for the vision OCR backend
type MockRecognizer struct {
	text    string
	scanErr error
}

func (m *MockRecognizer) RecognizeText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	if m.scanErr != nil {
		return "", m.scanErr
	}
	return m.text, nil
}

func (m *MockRecognizer) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		rateServer   *ghttp.Server
		ledgerServer *ghttp.Server
		sheetServer  *ghttp.Server
		recognizer   *MockRecognizer
		service      *document.Service
		server       *document.Server
	)

	BeforeEach(func() {
		rateServer = ghttp.NewServer()
		ledgerServer = ghttp.NewServer()
		sheetServer = ghttp.NewServer()

		recognizer = &MockRecognizer{
			text: "Invoice #: 2025-INV-0023\nDate: 2025-05-01\n3x USB-C Cables ¥350.00",
		}

		converter := currency.NewConverter(currency.Config{
			BaseURL: rateServer.URL(),
			APIKey:  "rate-key",
		})

		ledgerClient := ledger.NewClient(ledger.Config{
			BaseURL:    ledgerServer.URL(),
			Token:      "fb-token",
			BusinessID: "biz-1",
		})

		sheetsService, err := sheets.NewService(context.Background(),
			option.WithEndpoint(sheetServer.URL()),
			option.WithoutAuthentication(),
		)
		Expect(err).NotTo(HaveOccurred())
		exporter := sheet.NewExporter(sheetsService, "sheet-1")

		service = document.NewService(recognizer, converter, ledgerClient, exporter, document.Config{
			TargetCurrency:  currency.USD,
			SheetRange:      "Sheet1!A1",
			InvoiceDefaults: ledger.Defaults{CustomerID: 12345, Date: "2025-05-17"},
		})
		server = document.NewServer(service, document.BasicAuth{})
	})

	AfterEach(func() {
		rateServer.Close()
		ledgerServer.Close()
		sheetServer.Close()
	})

	upload := func(path, filename, fileContentType string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		for key, value := range fields {
			Expect(writer.WriteField(key, value)).To(Succeed())
		}
		Expect(writer.Close()).To(Succeed())

		request := httptest.NewRequest("POST", path, body)
		request.Header.Set("Content-Type", writer.FormDataContentType())
		recorder := httptest.NewRecorder()
		server.ServeHTTP(recorder, request)
		return recorder
	}

	Describe("invoice upload", func() {
		BeforeEach(func() {
			rateServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("GET", "/rate-key/pair/CNY/USD/350"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"conversion_result": 49.0,
				}),
			))
			ledgerServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("POST", "/accounting/account/biz-1/invoices/invoices"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer fb-token"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"response": map[string]interface{}{
						"result": map[string]interface{}{
							"invoice": map[string]interface{}{
								"id":             101,
								"invoice_number": "INV-101",
							},
						},
					},
				}),
			))
			sheetServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("PUT", "/v4/spreadsheets/sheet-1/values/Sheet1!A1"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"updatedCells": 8,
				}),
			))
		})

		It("should run the whole pipeline", func() {
			recorder := upload("/api/invoices", "receipt.jpg", "image/jpeg", []byte("fake image"), map[string]string{
				"currency": "CNY",
			})

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var outcome document.InvoiceOutcome
			Expect(json.Unmarshal(recorder.Body.Bytes(), &outcome)).To(Succeed())

			Expect(outcome.Records).To(HaveLen(1))
			Expect(outcome.Records[0].Description).To(Equal("3x USB-C Cables"))
			Expect(outcome.Records[0].Amount.String()).To(Equal("49"))
			Expect(outcome.Records[0].Currency).To(Equal(currency.USD))
			Expect(outcome.Records[0].Converted).To(BeTrue())

			Expect(outcome.Submissions).To(HaveLen(1))
			Expect(outcome.Submissions[0].InvoiceID).To(Equal(int64(101)))

			Expect(outcome.UpdatedCells).To(Equal(int64(8)))

			Expect(rateServer.ReceivedRequests()).To(HaveLen(1))
			Expect(ledgerServer.ReceivedRequests()).To(HaveLen(1))
			Expect(sheetServer.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Describe("invoice upload when the rate service is down", func() {
		BeforeEach(func() {
			rateServer.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))
			ledgerServer.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
				"response": map[string]interface{}{},
			}))
			sheetServer.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
				"updatedCells": 8,
			}))
		})

		It("should keep the original amount, flagged as unconverted", func() {
			recorder := upload("/api/invoices", "receipt.jpg", "image/jpeg", []byte("fake image"), map[string]string{
				"currency": "CNY",
			})

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var outcome document.InvoiceOutcome
			Expect(json.Unmarshal(recorder.Body.Bytes(), &outcome)).To(Succeed())

			Expect(outcome.Records).To(HaveLen(1))
			Expect(outcome.Records[0].Amount.String()).To(Equal("350"))
			Expect(outcome.Records[0].Currency).To(Equal(currency.CNY))
			Expect(outcome.Records[0].Converted).To(BeFalse())
		})
	})

	Describe("csv upload", func() {
		BeforeEach(func() {
			for _, result := range []float64{14.0, 28.0} {
				rateServer.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"conversion_result": result,
				}))
			}
			sheetServer.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest("PUT", "/v4/spreadsheets/sheet-1/values/Sheet1!A1"),
				ghttp.VerifyJSONRepresenting(map[string]interface{}{
					"values": [][]interface{}{
						{"description", "amount", "converted_amount", "currency"},
						{"Hosting", "100", "14", "USD"},
						{"Domain", "200", "28", "USD"},
					},
				}),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]interface{}{
					"updatedCells": 12,
				}),
			))
		})

		It("should overwrite the range with the augmented grid", func() {
			csv := "description,amount\nHosting,100\nDomain,200\n"
			recorder := upload("/api/tables", "data.csv", "text/csv", []byte(csv), map[string]string{
				"currency": "CNY",
			})

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var outcome document.TableOutcome
			Expect(json.Unmarshal(recorder.Body.Bytes(), &outcome)).To(Succeed())
			Expect(outcome.Rows).To(Equal([][]string{
				{"Hosting", "100", "14", "USD"},
				{"Domain", "200", "28", "USD"},
			}))
			Expect(outcome.UpdatedCells).To(Equal(int64(12)))

			Expect(rateServer.ReceivedRequests()).To(HaveLen(2))
			Expect(sheetServer.ReceivedRequests()).To(HaveLen(1))
		})
	})
})
