package auth

import (
	"testing"
	"time"
)

func TestRunnerToken_RoundTrip(t *testing.T) {
	secret := "test-secret"
	now := time.Date(2026, 3, 2, 3, 4, 5, 0, time.UTC)

	token, err := GenerateRunnerToken(secret, RunnerTokenClaims{
		ExecutionID:   "exec-123",
		GroupID:       "group-a",
		ExpiresAtUnix: now.Add(30 * time.Minute).Unix(),
	}, now)
	if err != nil {
		t.Fatalf("GenerateRunnerToken: %v", err)
	}

	claims, err := VerifyRunnerToken(secret, token, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("VerifyRunnerToken: %v", err)
	}
	if claims.ExecutionID != "exec-123" {
		t.Fatalf("ExecutionID=%q, want %q", claims.ExecutionID, "exec-123")
	}
	if claims.GroupID != "group-a" {
		t.Fatalf("GroupID=%q, want %q", claims.GroupID, "group-a")
	}
	if claims.IssuedAtUnix != now.Unix() {
		t.Fatalf("IssuedAtUnix=%d, want %d", claims.IssuedAtUnix, now.Unix())
	}
}

func TestRunnerToken_Expired(t *testing.T) {
	secret := "test-secret"
	now := time.Date(2026, 3, 2, 3, 4, 5, 0, time.UTC)

	token, err := GenerateRunnerToken(secret, RunnerTokenClaims{
		ExecutionID:   "exec-123",
		ExpiresAtUnix: now.Add(1 * time.Minute).Unix(),
	}, now)
	if err != nil {
		t.Fatalf("GenerateRunnerToken: %v", err)
	}

	_, err = VerifyRunnerToken(secret, token, now.Add(2*time.Minute))
	if err == nil {
		t.Fatalf("VerifyRunnerToken: expected error")
	}
	if err != ErrRunnerTokenExpired {
		t.Fatalf("VerifyRunnerToken error=%v, want %v", err, ErrRunnerTokenExpired)
	}
}

func TestRunnerToken_WrongSecretRejected(t *testing.T) {
	now := time.Date(2026, 3, 2, 3, 4, 5, 0, time.UTC)

	token, err := GenerateRunnerToken("secret-a", RunnerTokenClaims{
		ExecutionID:   "exec-123",
		ExpiresAtUnix: now.Add(time.Hour).Unix(),
	}, now)
	if err != nil {
		t.Fatalf("GenerateRunnerToken: %v", err)
	}

	if _, err := VerifyRunnerToken("secret-b", token, now); err != ErrRunnerTokenInvalid {
		t.Fatalf("VerifyRunnerToken error=%v, want %v", err, ErrRunnerTokenInvalid)
	}
}

func TestRunnerTokenSubject_Parse(t *testing.T) {
	subject := RunnerTokenSubject(RunnerTokenClaims{ExecutionID: "exec-123", GroupID: "group-a"})
	executionID, groupID, ok := ParseRunnerTokenSubject(subject)
	if !ok {
		t.Fatalf("ParseRunnerTokenSubject ok=false")
	}
	if executionID != "exec-123" {
		t.Fatalf("executionID=%q, want %q", executionID, "exec-123")
	}
	if groupID != "group-a" {
		t.Fatalf("groupID=%q, want %q", groupID, "group-a")
	}
}
