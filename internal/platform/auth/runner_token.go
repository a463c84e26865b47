package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const runnerTokenPrefix = "agentsim_runner_v1"

var (
	ErrRunnerTokenInvalid = errors.New("runner token is invalid")
	ErrRunnerTokenExpired = errors.New("runner token is expired")
)

// RunnerTokenClaims scope a token to one simulation execution. Simulation
// runners present these tokens when reporting group progress back.
type RunnerTokenClaims struct {
	ExecutionID   string `json:"execution_id"`
	GroupID       string `json:"group_id,omitempty"`
	IssuedAtUnix  int64  `json:"iat"`
	ExpiresAtUnix int64  `json:"exp"`
}

func RunnerTokenSubject(claims RunnerTokenClaims) string {
	subject := "execution:" + strings.TrimSpace(claims.ExecutionID)
	if strings.TrimSpace(claims.GroupID) != "" {
		subject += ":group:" + strings.TrimSpace(claims.GroupID)
	}
	return subject
}

func ParseRunnerTokenSubject(subject string) (executionID string, groupID string, ok bool) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", "", false
	}
	if !strings.HasPrefix(subject, "execution:") {
		return "", "", false
	}

	rest := strings.TrimPrefix(subject, "execution:")
	parts := strings.Split(rest, ":group:")
	if len(parts) == 0 {
		return "", "", false
	}
	executionID = strings.TrimSpace(parts[0])
	if executionID == "" {
		return "", "", false
	}
	if len(parts) == 1 {
		return executionID, "", true
	}
	if len(parts) != 2 {
		return "", "", false
	}
	groupID = strings.TrimSpace(parts[1])
	if groupID == "" {
		return "", "", false
	}
	return executionID, groupID, true
}

func GenerateRunnerToken(secret string, claims RunnerTokenClaims, now time.Time) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", errors.New("secret is required")
	}
	claims.ExecutionID = strings.TrimSpace(claims.ExecutionID)
	claims.GroupID = strings.TrimSpace(claims.GroupID)
	if claims.ExecutionID == "" {
		return "", errors.New("execution_id is required")
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	if claims.IssuedAtUnix == 0 {
		claims.IssuedAtUnix = now.UTC().Unix()
	}
	if claims.ExpiresAtUnix == 0 {
		return "", errors.New("exp is required")
	}
	if claims.ExpiresAtUnix <= now.UTC().Unix() {
		return "", errors.New("exp must be in the future")
	}

	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)
	sigB64, err := computeRunnerTokenSignature(secret, payloadB64)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{runnerTokenPrefix, payloadB64, sigB64}, "."), nil
}

func VerifyRunnerToken(secret string, token string, now time.Time) (RunnerTokenClaims, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return RunnerTokenClaims{}, errors.New("secret is required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}
	if parts[0] != runnerTokenPrefix {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}
	payloadB64 := strings.TrimSpace(parts[1])
	sigB64 := strings.TrimSpace(parts[2])
	if payloadB64 == "" || sigB64 == "" {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}

	expectedB64, err := computeRunnerTokenSignature(secret, payloadB64)
	if err != nil {
		return RunnerTokenClaims{}, err
	}
	expectedSig, err := base64.RawURLEncoding.DecodeString(expectedB64)
	if err != nil {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}
	if !hmac.Equal(expectedSig, gotSig) {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}
	var claims RunnerTokenClaims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}
	claims.ExecutionID = strings.TrimSpace(claims.ExecutionID)
	claims.GroupID = strings.TrimSpace(claims.GroupID)
	if claims.ExecutionID == "" || claims.ExpiresAtUnix == 0 {
		return RunnerTokenClaims{}, ErrRunnerTokenInvalid
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}
	if claims.ExpiresAtUnix <= now.UTC().Unix() {
		return RunnerTokenClaims{}, ErrRunnerTokenExpired
	}

	return claims, nil
}

func computeRunnerTokenSignature(secret string, payloadB64 string) (string, error) {
	payloadB64 = strings.TrimSpace(payloadB64)
	if payloadB64 == "" {
		return "", errors.New("payload is required")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write([]byte("agentsim-runner-token-v1\n")); err != nil {
		return "", err
	}
	if _, err := mac.Write([]byte(payloadB64)); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
