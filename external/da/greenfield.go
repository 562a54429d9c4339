package da

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bnb-chain/da-orchestrator/config"
)

const (
	pathCreateBundle   = "/v1/createBundle"
	pathFinalizeBundle = "/v1/finalizeBundle"
	pathUploadObject   = "/v1/uploadObject"
	pathGetBundleInfo  = "/v1/queryBundle/%s/%s" // bucketName, bundleName

	bundleExpiredTime = 24 * time.Hour

	// bundle service side statuses
	bundleStatusFinalized      = 1
	bundleStatusCreatedOnChain = 2
	bundleStatusSealedOnChain  = 3
)

type bundleInfo struct {
	Status           int   `json:"status"`
	CreatedTimestamp int64 `json:"createdTimestamp"`
}

// GreenfieldClient stores each payload as a single-object bundle on the
// Greenfield bundle service. The transaction handle is the bundle name; the
// bundle counts as finalized once it is sealed on chain.
type GreenfieldClient struct {
	hc         *http.Client
	host       string
	bucketName string
	privKey    *ecdsa.PrivateKey
	addr       common.Address
}

func NewGreenfieldClient(cfg *config.GreenfieldConfig) (*GreenfieldClient, error) {
	transport := &http.Transport{
		DisableCompression:  true,
		MaxIdleConnsPerHost: 1000,
		MaxConnsPerHost:     1000,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &GreenfieldClient{
		hc: &http.Client{
			Timeout:   1 * time.Minute,
			Transport: transport,
		},
		host:       cfg.BundleServiceEndpoint,
		bucketName: cfg.BucketName,
	}
	if cfg.PrivateKey != "" {
		pkBz, err := hex.DecodeString(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		privateKey, err := crypto.ToECDSA(pkBz)
		if err != nil {
			return nil, err
		}
		client.privKey = privateKey
		client.addr = crypto.PubkeyToAddress(privateKey.PublicKey)
	}
	return client, nil
}

func bundleNameFor(payload []byte) string {
	digest := sha256.Sum256(payload)
	return "diff_" + hex.EncodeToString(digest[:8])
}

func (c *GreenfieldClient) Submit(ctx context.Context, payload []byte) (string, error) {
	bundleName := bundleNameFor(payload)

	headers := map[string]string{
		"Content-Type":              "application/json",
		"X-Bundle-Bucket-Name":      c.bucketName,
		"X-Bundle-Name":             bundleName,
		"X-Bundle-Expiry-Timestamp": fmt.Sprintf("%d", time.Now().Add(bundleExpiredTime).Unix()),
	}
	if err := c.post(ctx, c.host+pathCreateBundle, headers, nil); err != nil {
		// An existing bundle means a previous attempt got this far; go on and
		// finalize it.
		if !strings.Contains(err.Error(), "already exists") {
			return "", err
		}
	}

	uploadHeaders := map[string]string{
		"Content-Type":         "application/octet-stream",
		"X-Bundle-Bucket-Name": c.bucketName,
		"X-Bundle-Name":        bundleName,
		"X-Bundle-File-Name":   bundleName,
	}
	if err := c.post(ctx, c.host+pathUploadObject, uploadHeaders, bytes.NewReader(payload)); err != nil {
		return "", err
	}

	if err := c.post(ctx, c.host+pathFinalizeBundle, headers, nil); err != nil {
		return "", err
	}
	return bundleName, nil
}

func (c *GreenfieldClient) Status(ctx context.Context, handle string) (TxStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+fmt.Sprintf(pathGetBundleInfo, c.bucketName, handle), nil)
	if err != nil {
		return TxStatusPending, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return TxStatusPending, fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return TxStatusRejectedOrNotFound, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TxStatusPending, fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return TxStatusPending, fmt.Errorf("%w: received non-OK response status %s, body %s", ErrTransport, resp.Status, string(body))
	}
	info := bundleInfo{}
	if err = json.Unmarshal(body, &info); err != nil {
		return TxStatusPending, fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	switch info.Status {
	case bundleStatusSealedOnChain:
		return TxStatusFinalized, nil
	case bundleStatusFinalized, bundleStatusCreatedOnChain:
		return TxStatusPending, nil
	}
	return TxStatusPending, nil
}

func (c *GreenfieldClient) post(ctx context.Context, url string, headers map[string]string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if err = c.signRequest(req); err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTransport, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: received non-OK response status %s, body %s", ErrSubmissionRejected, resp.Status, string(respBody))
	}
	return nil
}

// signRequest signs the sorted bundle headers with the configured key so the
// bundle service can recover the uploader address.
func (c *GreenfieldClient) signRequest(req *http.Request) error {
	if c.privKey == nil {
		return nil
	}
	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		if strings.HasPrefix(k, "X-Bundle-") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(":")
		sb.WriteString(req.Header.Get(k))
		sb.WriteString("\n")
	}
	digest := sha256.Sum256([]byte(sb.String()))
	sig, err := crypto.Sign(digest[:], c.privKey)
	if err != nil {
		return err
	}
	req.Header.Set("X-Signature", hex.EncodeToString(sig))
	return nil
}
