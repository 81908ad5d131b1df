package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"farplane.ai/internal/persistence/r2s3"
)

// buildR2Mirror returns nil when FP_R2_MIRROR is off.
func buildR2Mirror(tileRoot string, logger *log.Logger) (*r2s3.Mirror, error) {
	if !envBool("FP_R2_MIRROR", false) {
		return nil, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("FP_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("FP_R2_BUCKET"))
	keyID := strings.TrimSpace(os.Getenv("FP_R2_ACCESS_KEY_ID"))
	secret := strings.TrimSpace(os.Getenv("FP_R2_SECRET_ACCESS_KEY"))
	if endpoint == "" || bucket == "" || keyID == "" || secret == "" {
		return nil, fmt.Errorf("FP_R2_MIRROR=true but FP_R2_ENDPOINT/FP_R2_BUCKET/FP_R2_ACCESS_KEY_ID/FP_R2_SECRET_ACCESS_KEY are not fully set")
	}
	client, err := r2s3.New(endpoint, bucket, keyID, secret)
	if err != nil {
		return nil, err
	}
	m := r2s3.NewMirror(client, tileRoot, r2s3.MirrorOptions{
		Prefix:  os.Getenv("FP_R2_PREFIX"),
		Workers: envInt("FP_R2_UPLOAD_WORKERS", 2),
		Queue:   envInt("FP_R2_QUEUE", 4096),
	}, logger)
	logger.Printf("r2 mirror enabled bucket=%s", bucket)
	return m, nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
