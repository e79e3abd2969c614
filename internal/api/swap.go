package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"swapkv/internal/model"
)

// Query parameters of the swap endpoint. Byte strings travel as url-safe base64.
const (
	paramKey     = "key"
	paramUID     = "uid"
	paramOffset  = "off"
	paramTTL     = "ttl"
	paramValues  = "val"
	paramMatched = "matched"
)

const formContentType = "application/x-www-form-urlencoded"

type handler struct {
	svc    Swapper
	logger *zap.Logger
}

func (h *handler) swap(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.svc.Swap(r.Context(), req)
	switch {
	case errors.Is(err, model.ErrConflict):
		http.Error(w, "conflict: restart the exchange at offset 0", http.StatusNotFound)
		return
	case err != nil:
		h.logger.Error("swap failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", formContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(encodeResult(res).Encode()))
}

func decodeRequest(q url.Values) (model.Request, error) {
	var (
		key, uid *string
		off      *uint64
		ttl      *uint32
		vals     *[]string
	)
	for _, p := range []struct {
		name string
		dest any
	}{
		{paramKey, &key},
		{paramUID, &uid},
		{paramOffset, &off},
		{paramTTL, &ttl},
		{paramValues, &vals},
	} {
		if err := runtime.BindQueryParameter("form", true, false, p.name, q, p.dest); err != nil {
			return model.Request{}, fmt.Errorf("invalid %s: %w", p.name, err)
		}
	}

	var req model.Request
	var err error
	if key != nil {
		if req.Key, err = decodeBytes(*key); err != nil {
			return model.Request{}, fmt.Errorf("invalid %s: %w", paramKey, err)
		}
	}
	if uid != nil {
		if req.ID, err = decodeBytes(*uid); err != nil {
			return model.Request{}, fmt.Errorf("invalid %s: %w", paramUID, err)
		}
	}
	if off != nil {
		req.Offset = *off
	}
	if ttl != nil {
		req.TTL = *ttl
	}
	if vals != nil {
		for _, v := range *vals {
			if v == "" {
				continue
			}
			for _, part := range strings.Split(v, ",") {
				chunk, err := decodeBytes(part)
				if err != nil {
					return model.Request{}, fmt.Errorf("invalid %s: %w", paramValues, err)
				}
				req.Values = append(req.Values, chunk)
			}
		}
	}
	return req, nil
}

// decodeBytes accepts url-safe base64 with or without padding.
func decodeBytes(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func encodeBytes(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

func encodeResult(res model.Result) url.Values {
	out := url.Values{}
	out.Set(paramKey, encodeBytes(res.Key))
	out.Set(paramUID, encodeBytes(res.ID))
	out.Set(paramOffset, strconv.FormatUint(res.Offset, 10))
	if res.HasTTL() {
		out.Set(paramTTL, strconv.FormatUint(uint64(res.TTL), 10))
	}
	if res.HasValues() {
		out.Set(paramMatched, "1")
		for _, v := range res.Values {
			out.Add(paramValues, encodeBytes(v))
		}
	}
	return out
}
