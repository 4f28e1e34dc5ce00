package database

import (
	"crypto/rand"
	"path/filepath"
	"testing"

	sq "github.com/Masterminds/squirrel"
)

// setupTestDB creates a temporary sqlite database for testing
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	encryptionKey := make([]byte, 32)
	if _, err := rand.Read(encryptionKey); err != nil {
		t.Fatalf("Failed to generate encryption key: %v", err)
	}

	db, err := NewDB(Config{
		Driver:        DriverSQLite,
		DatabasePath:  filepath.Join(t.TempDir(), "test.db"),
		EncryptionKey: encryptionKey,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestNewDB(t *testing.T) {
	db := setupTestDB(t)

	if db.Driver() != DriverSQLite {
		t.Errorf("Expected driver %s, got %s", DriverSQLite, db.Driver())
	}
}

func TestNewDBRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name: "unknown driver",
			config: Config{
				Driver:        "mysql",
				EncryptionKey: make([]byte, 32),
			},
		},
		{
			name: "bad key length",
			config: Config{
				Driver:        DriverSQLite,
				DatabasePath:  filepath.Join(t.TempDir(), "bad.db"),
				EncryptionKey: []byte("short"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDB(tt.config); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	key := make([]byte, 32)
	path := filepath.Join(t.TempDir(), "twice.db")

	for i := 0; i < 2; i++ {
		db, err := NewDB(Config{Driver: DriverSQLite, DatabasePath: path, EncryptionKey: key})
		if err != nil {
			t.Fatalf("Open %d failed: %v", i+1, err)
		}
		db.Close()
	}
}

func TestEncryptDecrypt(t *testing.T) {
	db := setupTestDB(t)

	testData := []byte("controller password")

	encrypted, err := db.Encrypt(testData)
	if err != nil {
		t.Fatalf("Failed to encrypt data: %v", err)
	}

	if encrypted == string(testData) {
		t.Error("Encrypted data should differ from plaintext")
	}

	again, err := db.Encrypt(testData)
	if err != nil {
		t.Fatalf("Failed to encrypt data: %v", err)
	}
	if again == encrypted {
		t.Error("Encryption should use a fresh nonce each time")
	}

	decrypted, err := db.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Failed to decrypt data: %v", err)
	}

	if string(decrypted) != string(testData) {
		t.Errorf("Expected %q, got %q", testData, decrypted)
	}
}

func TestDecryptInvalidData(t *testing.T) {
	db := setupTestDB(t)

	tests := []struct {
		name string
		data string
	}{
		{"not base64", "%%%"},
		{"too short", "AAAA"},
		{"tampered", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.Decrypt(tt.data); err == nil {
				t.Error("Expected decryption error")
			}
		})
	}
}

func TestStatementBuilderPlaceholders(t *testing.T) {
	tests := []struct {
		driver   string
		expected string
	}{
		{driver: DriverSQLite, expected: "SELECT id FROM tenants WHERE hostname = ? AND enabled = ?"},
		{driver: DriverPostgres, expected: "SELECT id FROM tenants WHERE hostname = $1 AND enabled = $2"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			query, args, err := statementBuilder(tt.driver).
				Select("id").
				From("tenants").
				Where(sq.Eq{"hostname": "dnac.example.com"}).
				Where(sq.Eq{"enabled": true}).
				ToSql()
			if err != nil {
				t.Fatalf("Failed to build query: %v", err)
			}
			if query != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, query)
			}
			if len(args) != 2 {
				t.Errorf("Expected 2 args, got %d", len(args))
			}
		})
	}
}
