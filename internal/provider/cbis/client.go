// Package cbis provides the SOAP client and normalizer for the CBIS product
// catalog (Citybreak).
//
// CBIS exposes a single ListAll operation filtered by geographic node,
// category and product type, paginated by item offset. Products carry their
// fields as an attribute-id/value list; see attributes.go for the id table.
package cbis

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultURL is the CBIS products endpoint.
	DefaultURL    = "http://api.cbis.citybreak.com/Products.asmx"
	soapNamespace = "http://cbis.citybreak.com/"
	soapAction    = soapNamespace + "ListAll"
)

// Client is the SOAP client for the CBIS ListAll operation.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a CBIS client with rate limiting.
func NewClient(requestsPerMinute int, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// --------------------------------------------------------------------------
// Request envelope
// --------------------------------------------------------------------------

type requestEnvelope struct {
	XMLName xml.Name    `xml:"soap:Envelope"`
	Soap    string      `xml:"xmlns:soap,attr"`
	Body    requestBody `xml:"soap:Body"`
}

type requestBody struct {
	ListAll ListAllRequest `xml:"ListAll"`
}

// ListAllRequest is the ListAll SOAP operation payload.
type ListAllRequest struct {
	Namespace    string `xml:"xmlns,attr"`
	APIKey       string `xml:"apiKey"`
	LanguageID   int    `xml:"languageId"`
	CategoryID   int    `xml:"categoryId"`
	TemplateID   int    `xml:"templateId"`
	PageOffset   int    `xml:"pageOffset"`
	ItemsPerPage int    `xml:"itemsPerPage"`
	Filter       Filter `xml:"filter"`
}

// Filter is the ListAll filter block.
type Filter struct {
	GeoNodeIDs                                   []int  `xml:"GeoNodeIds>int"`
	StartDate                                    string `xml:"StartDate,omitempty"`
	Highlights                                   int    `xml:"Highlights"`
	OrderBy                                      string `xml:"OrderBy"`
	SortOrder                                    string `xml:"SortOrder"`
	SubCategoryID                                int    `xml:"SubCategoryId"`
	ProductType                                  string `xml:"ProductType"`
	WithOccasionsOnly                            bool   `xml:"WithOccasionsOnly"`
	ExcludeProductsWithoutOccasions              bool   `xml:"ExcludeProductsWithoutOccasions"`
	ExcludeProductsNotInCurrentLanguage          bool   `xml:"ExcludeProductsNotInCurrentLanguage"`
	IncludeArchivedProducts                      bool   `xml:"IncludeArchivedProducts"`
	IncludeInactiveProducts                      bool   `xml:"IncludeInactiveProducts"`
	BookableProductsFirst                        bool   `xml:"BookableProductsFirst"`
	RandomSortSeed                               int    `xml:"RandomSortSeed"`
	ExcludeProductsWhereNameNotInCurrentLanguage bool   `xml:"ExcludeProductsWhereNameNotInCurrentLanguage"`
	IncludePendingPublish                        bool   `xml:"IncludePendingPublish"`
}

// --------------------------------------------------------------------------
// Response envelope (namespace-agnostic)
// --------------------------------------------------------------------------

type responseEnvelope struct {
	Body struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
		Response struct {
			Result struct {
				TotalResults int `xml:"TotalResults"`
				Items        struct {
					Products []Product `xml:"Product"`
				} `xml:"Items"`
			} `xml:"ListAllResult"`
		} `xml:"ListAllResponse"`
	} `xml:"Body"`
}

// ListAll performs one rate-limited ListAll call and returns the products
// of that page plus the total hit count reported by CBIS.
func (c *Client) ListAll(ctx context.Context, endpoint string, req ListAllRequest) ([]Product, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	req.Namespace = soapNamespace
	payload, err := xml.Marshal(requestEnvelope{
		Soap: "http://schemas.xmlsoap.org/soap/envelope/",
		Body: requestBody{ListAll: req},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", `"`+soapAction+`"`)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("soap request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}

	var env responseEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, 0, fmt.Errorf("CBIS ListAll returned %d: %s", resp.StatusCode, truncate(body, 200))
		}
		return nil, 0, fmt.Errorf("decode envelope: %w", err)
	}
	if f := env.Body.Fault; f != nil {
		return nil, 0, fmt.Errorf("CBIS fault %s: %s", f.Code, f.String)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("CBIS ListAll returned %d: %s", resp.StatusCode, truncate(body, 200))
	}

	result := env.Body.Response.Result
	return result.Items.Products, result.TotalResults, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
