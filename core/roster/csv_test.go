package roster

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/peereval/core"
)

func TestParseNames(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []NameRow
		wantErr error
	}{
		{name: "empty", content: "", wantErr: ErrEmptyCSV},
		{name: "no name column", content: "email,group\nada@uni.test,1\n", wantErr: ErrNoNameColumn},
		{
			name:    "name header",
			content: "name\nAda Lovelace\nAlan Turing\n",
			want:    []NameRow{{Line: 2, Name: "Ada Lovelace"}, {Line: 3, Name: "Alan Turing"}},
		},
		{
			name:    "bom & spaced header",
			content: "\ufeffStudent Name,email\nAda Lovelace,ada@uni.test\n",
			want:    []NameRow{{Line: 2, Name: "Ada Lovelace"}},
		},
		{
			name:    "studentname, any case",
			content: "id,StudentName\n1,Ada Lovelace\n",
			want:    []NameRow{{Line: 2, Name: "Ada Lovelace"}},
		},
		{
			name:    "student_name, first matching column wins",
			content: "Student_Name,name\nAda Lovelace,Lovelace\n",
			want:    []NameRow{{Line: 2, Name: "Ada Lovelace"}},
		},
		{
			name:    "blank & ragged rows kept, spaces collapsed",
			content: "id,name\n1,\n2\n3,  Alan    Turing \n",
			want:    []NameRow{{Line: 2, Name: ""}, {Line: 3, Name: ""}, {Line: 4, Name: "Alan Turing"}},
		},
		{name: "header only", content: "name\n", want: []NameRow{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNames(strings.NewReader(tt.content))
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				var vErr *core.ValidationError
				assert.ErrorAs(t, err, &vErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
