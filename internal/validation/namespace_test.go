package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/models"
)

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name    string
		ns      models.Namespace
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid namespace",
			ns:   models.Namespace{Database: "app", Collection: "notes"},
		},
		{
			name: "valid - dotted collection",
			ns:   models.Namespace{Database: "app-1", Collection: "notes.archive_2"},
		},
		{
			name: "valid - max lengths",
			ns: models.Namespace{
				Database:   strings.Repeat("d", MaxDatabaseLen),
				Collection: strings.Repeat("c", MaxCollectionLen),
			},
		},
		{
			name:    "invalid - empty database",
			ns:      models.Namespace{Collection: "notes"},
			wantErr: true,
			errMsg:  "database name cannot be empty",
		},
		{
			name:    "invalid - empty collection",
			ns:      models.Namespace{Database: "app"},
			wantErr: true,
			errMsg:  "collection name cannot be empty",
		},
		{
			name:    "invalid - dot in database",
			ns:      models.Namespace{Database: "a.b", Collection: "notes"},
			wantErr: true,
			errMsg:  "database name can only contain",
		},
		{
			name:    "invalid - slash in collection",
			ns:      models.Namespace{Database: "app", Collection: "a/b"},
			wantErr: true,
			errMsg:  "collection name can only contain",
		},
		{
			name:    "invalid - database too long",
			ns:      models.Namespace{Database: strings.Repeat("d", MaxDatabaseLen+1), Collection: "c"},
			wantErr: true,
			errMsg:  "must not exceed 64",
		},
		{
			name:    "invalid - collection too long",
			ns:      models.Namespace{Database: "d", Collection: strings.Repeat("c", MaxCollectionLen+1)},
			wantErr: true,
			errMsg:  "must not exceed 128",
		},
		{
			name:    "invalid - cyrillic",
			ns:      models.Namespace{Database: "база", Collection: "notes"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNamespace(tt.ns)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}
