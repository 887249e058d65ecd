package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	secret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации секрета: %v", err)
	}
	s, err := NewTokenService(secret)
	if err != nil {
		t.Fatalf("Ошибка создания сервиса: %v", err)
	}
	return s
}

// TestGenerateAndValidate тестирует полный цикл токена
func TestGenerateAndValidate(t *testing.T) {
	s := newTestService(t)

	token, err := s.Generate("admin", true, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	// Проверяем, что токен содержит точки (разделители частей JWT)
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}

	claims, err := s.Validate(token)
	if err != nil {
		t.Fatalf("Валидный токен определен как недействительный: %v", err)
	}
	if claims.Username != "admin" || !claims.IsAdmin {
		t.Errorf("Неверные claims: %+v", claims)
	}
	if claims.Subject != "admin" || claims.Issuer != Issuer {
		t.Errorf("Неверные registered claims: %+v", claims.RegisteredClaims)
	}
}

// TestValidateInvalidJWT тестирует валидацию недействительного JWT
func TestValidateInvalidJWT(t *testing.T) {
	s := newTestService(t)

	testCases := []string{
		"invalid.token.here",
		"",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	}

	for _, invalidToken := range testCases {
		claims, err := s.Validate(invalidToken)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Недействительный токен '%s' прошел валидацию", invalidToken)
		}
		if claims != nil {
			t.Errorf("claims должны быть nil для недействительного токена")
		}
	}
}

// TestValidateForeignSecret токен другого сервиса не принимается
func TestValidateForeignSecret(t *testing.T) {
	a := newTestService(t)
	b := newTestService(t)

	token, err := a.Generate("user", false, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}
	if _, err := b.Validate(token); err == nil {
		t.Error("Токен с чужой подписью прошел валидацию")
	}
}

// TestValidateExpired истёкший токен отклоняется
func TestValidateExpired(t *testing.T) {
	s := newTestService(t)
	issued := time.Now().Add(-2 * time.Hour)
	s.now = func() time.Time { return issued }

	token, err := s.Generate("user", false, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	s.now = time.Now
	if _, err := s.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Истёкший токен прошел валидацию: %v", err)
	}
}

// TestNewTokenServiceSecrets тестирует проверку секрета
func TestNewTokenServiceSecrets(t *testing.T) {
	if _, err := NewTokenService(""); err != nil {
		t.Errorf("Пустой секрет должен заменяться случайным: %v", err)
	}

	invalidSecrets := []string{
		"too-short",
		"invalid-base64-@#$%",
		"c2hvcnQ=",
	}
	for _, invalidSecret := range invalidSecrets {
		if _, err := NewTokenService(invalidSecret); err == nil {
			t.Errorf("Недействительный секрет '%s' был принят", invalidSecret)
		}
	}
}

// TestGenerateSecureSecret тестирует генерацию секретного ключа
func TestGenerateSecureSecret(t *testing.T) {
	secret1, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации первого секрета: %v", err)
	}
	secret2, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации второго секрета: %v", err)
	}

	if secret1 == secret2 {
		t.Error("Два последовательных вызова GenerateSecureSecret вернули одинаковый результат")
	}

	// base64 от 32 байт = 44 символа
	if len(secret1) < 40 || len(secret2) < 40 {
		t.Error("Секрет слишком короткий")
	}
}
