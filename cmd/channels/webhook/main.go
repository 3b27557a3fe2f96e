package main

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/creasty/defaults"
	"github.com/jobwatch/jobwatch/internal"
	"github.com/jobwatch/jobwatch/internal/utils"
	"github.com/jobwatch/jobwatch/pkg/plugin"
)

func main() {
	plugin.RunPlugin(&Webhook{})
}

// transport is a http.Transport with a custom User-Agent.
type transport http.Transport

// RoundTrip implements http.RoundTripper with a custom User-Agent header.
func (trans *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", "jobwatch-webhook/"+internal.Version.Version)
	return (*http.Transport)(trans).RoundTrip(req)
}

// Webhook is a channel plugin performing a templated HTTP request per
// notification. All templates are Go text templates evaluated against the
// current plugin.NotificationRequest, with an additional json function.
type Webhook struct {
	Method                 string      `json:"method" default:"POST"`
	URLTemplate            string      `json:"url_template"`
	RequestHeadersTemplate string      `json:"request_headers_template"`
	RequestBodyTemplate    string      `json:"request_body_template" default:"{{json .}}"`
	ResponseStatusCodes    string      `json:"response_status_codes" default:"200"`
	TlsCaPemFile           string      `json:"tls_ca_pem_file"`
	TlsInsecure            plugin.Bool `json:"tls_insecure"`

	tmplUrl            *template.Template
	tmplRequestHeaders map[string]*template.Template
	tmplRequestBody    *template.Template
	respStatusCodes    []int
	httpTransport      http.RoundTripper
}

func (ch *Webhook) GetInfo() *plugin.Info {
	return &plugin.Info{Name: "Webhook", Version: internal.Version.Version}
}

func (ch *Webhook) SetConfig(jsonStr json.RawMessage) error {
	err := defaults.Set(ch)
	if err != nil {
		return err
	}

	err = json.Unmarshal(jsonStr, ch)
	if err != nil {
		return err
	}

	if ch.URLTemplate == "" {
		return errors.New("url_template must be provided")
	}

	tmplFuncs := template.FuncMap{
		"json": func(a any) (string, error) {
			data, err := json.Marshal(a)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}

	ch.tmplUrl, err = template.New("url").Funcs(tmplFuncs).Parse(ch.URLTemplate)
	if err != nil {
		return fmt.Errorf("cannot parse URL template: %w", err)
	}

	ch.tmplRequestHeaders = make(map[string]*template.Template)
	for _, reqHeaderEntry := range strings.Split(ch.RequestHeadersTemplate, "\n") {
		if strings.TrimSpace(reqHeaderEntry) == "" {
			continue
		}

		key, tmplValue, found := strings.Cut(reqHeaderEntry, "=")
		if !found {
			return fmt.Errorf("cannot process invalid Request Header pair %q", reqHeaderEntry)
		}

		key = strings.TrimSpace(key)
		tmplValue = strings.TrimSpace(tmplValue)

		if key == "" {
			return fmt.Errorf("cannot process Request Header pair %q with an empty key", reqHeaderEntry)
		}

		tmpl, err := template.New("request_header_" + key).Funcs(tmplFuncs).Parse(tmplValue)
		if err != nil {
			return fmt.Errorf("cannot parse Request Header pair %q as a template: %w", reqHeaderEntry, err)
		}

		ch.tmplRequestHeaders[key] = tmpl
	}

	ch.tmplRequestBody, err = template.New("request_body").Funcs(tmplFuncs).Parse(ch.RequestBodyTemplate)
	if err != nil {
		return fmt.Errorf("cannot parse Request Body template: %w", err)
	}

	respStatusCodes := strings.Split(ch.ResponseStatusCodes, ",")
	ch.respStatusCodes = make([]int, len(respStatusCodes))
	for i, respStatusCodeStr := range respStatusCodes {
		respStatusCode, err := strconv.Atoi(strings.TrimSpace(respStatusCodeStr))
		if err != nil {
			return fmt.Errorf("cannot convert status code %q to int: %w", respStatusCodeStr, err)
		}
		ch.respStatusCodes[i] = respStatusCode
	}

	tlsConf := &tls.Config{
		// https://ssl-config.mozilla.org/#server=go&config=intermediate
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}

	if ch.TlsCaPemFile != "" {
		caPem, err := os.ReadFile(ch.TlsCaPemFile)
		if err != nil {
			return fmt.Errorf("cannot open custom CA PEM file %q: %v", ch.TlsCaPemFile, err)
		}

		tlsConf.RootCAs = x509.NewCertPool()
		if !tlsConf.RootCAs.AppendCertsFromPEM(caPem) {
			return fmt.Errorf("cannot parse CA PEM file %q", ch.TlsCaPemFile)
		}
	}
	if ch.TlsInsecure {
		tlsConf.InsecureSkipVerify = true
	}

	ch.httpTransport = &transport{TLSClientConfig: tlsConf}

	return nil
}

func (ch *Webhook) SendNotification(req *plugin.NotificationRequest) error {
	var urlBuff, reqBodyBuff, respBuffer bytes.Buffer
	if err := ch.tmplUrl.Execute(&urlBuff, req); err != nil {
		return fmt.Errorf("cannot execute URL template: %w", err)
	}
	if err := ch.tmplRequestBody.Execute(&reqBodyBuff, req); err != nil {
		return fmt.Errorf("cannot execute Request Body template: %w", err)
	}

	httpReq, err := http.NewRequest(ch.Method, urlBuff.String(), &reqBodyBuff)
	if err != nil {
		return err
	}
	// Headers are applied in key order so repeated requests look alike.
	var headerErr error
	utils.IterateOrderedMap(ch.tmplRequestHeaders)(func(key string, tmplValue *template.Template) bool {
		var valueBuff bytes.Buffer
		if err := tmplValue.Execute(&valueBuff, req); err != nil {
			headerErr = fmt.Errorf("cannot execute Request Header template for key %q: %w", key, err)
			return false
		}
		httpReq.Header.Set(key, valueBuff.String())
		return true
	})
	if headerErr != nil {
		return headerErr
	}

	httpClient := &http.Client{Transport: ch.httpTransport}
	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		_ = httpResp.Body.Close()
	}()

	// Limit response to 1 MiB as it will be logged in case of an unexpected status code.
	limitedRespReader := io.LimitReader(httpResp.Body, 1024*1024)
	if _, err := io.Copy(&respBuffer, limitedRespReader); err != nil {
		return fmt.Errorf("cannot read response: %w", err)
	}

	if !slices.Contains(ch.respStatusCodes, httpResp.StatusCode) {
		_, _ = fmt.Fprintf(os.Stderr, "received unexpected HTTP response code %d with body %q\n",
			httpResp.StatusCode, respBuffer.String())

		return fmt.Errorf("unaccepted HTTP response status code %d not in %v",
			httpResp.StatusCode, ch.respStatusCodes)
	}

	return nil
}
