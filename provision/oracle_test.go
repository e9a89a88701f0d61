package provision

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ns(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func TestPersonRow_Attributes(t *testing.T) {
	tests := []struct {
		name string
		row  personRow
		want map[string]any
	}{
		{
			name: "staff ex-student",
			row: personRow{
				ldapUID:      1111,
				firstName:    ns("Xavier Student"),
				lastName:     ns("Staffer"),
				email:        ns("staffexstudent@example.edu"),
				affiliations: ns("EMPLOYEE-TYPE-STAFF,STUDENT-STATUS-EXPIRED"),
			},
			want: map[string]any{
				AttrName:         "1111",
				AttrFirstName:    "Xavier Student",
				AttrLastName:     "Staffer",
				AttrEmail:        "staffexstudent@example.edu",
				AttrRole:         "Staff",
				AttrDemographics: []string{},
			},
		},
		{
			name: "double major",
			row: personRow{
				ldapUID:      22222,
				ugGradFlag:   ns("U"),
				firstName:    ns("Major"),
				lastName:     ns("Dubble"),
				email:        ns("doublemajor@example.edu"),
				affiliations: ns("STUDENT-TYPE-REGISTERED"),
				majors: [4]major{
					{name: ns("DOUBLE              "), college: ns("CONCURNT")},
					{name: ns("POLITICAL SCIENCE   "), title: ns("POLITICAL SCIENCE                    "), college: ns("L & S   ")},
					{name: ns("BUSINESS ADMIN      "), title: ns("BUSINESS ADMINISTRATION              "), college: ns("L & S   ")},
					{college: ns("L & S   ")},
				},
				levelDesc:   ns("Senior   "),
				newTrfrFlag: ns("N"),
			},
			want: map[string]any{
				AttrName:      "22222",
				AttrFirstName: "Major",
				AttrLastName:  "Dubble",
				AttrEmail:     "doublemajor@example.edu",
				AttrRole:      "Undergraduate Student",
				AttrMajor:     "DOUBLE : POLITICAL SCIENCE ; BUSINESS ADMINISTRATION",
				AttrCollege:   "CONCURNT",
				AttrDemographics: []string{
					"/colleges/CONCURNT/standings/undergrad",
					"/colleges/CONCURNT/standings/undergrad/majors/DOUBLE",
					"/colleges/L & S/standings/undergrad",
					"/colleges/L & S/standings/undergrad/majors/BUSINESS ADMIN",
					"/colleges/L & S/standings/undergrad/majors/POLITICAL SCIENCE",
					"/student/educ_level/Senior",
					"/student/new_trfr_flag/N",
				},
			},
		},
		{
			name: "graduate student in environmental design",
			row: personRow{
				ldapUID:      333,
				ugGradFlag:   ns("G"),
				affiliations: ns("STUDENT-TYPE-REGISTERED,EMPLOYEE-TYPE-STAFF"),
				majors: [4]major{
					{name: ns("ARCHITECTURE"), title: ns("ARCHITECTURE"), college: ns("ENV DSGN")},
				},
			},
			want: map[string]any{
				AttrName:      "333",
				AttrFirstName: "",
				AttrLastName:  "",
				AttrEmail:     "",
				AttrRole:      "Graduate Student",
				AttrMajor:     "ARCHITECTURE",
				AttrCollege:   "College of Environmental Design",
				AttrDemographics: []string{
					"/colleges/ENV DSGN/standings/grad",
					"/colleges/ENV DSGN/standings/grad/majors/ARCHITECTURE",
				},
			},
		},
		{
			name: "registered student without standing",
			row: personRow{
				ldapUID:      444,
				affiliations: ns("STUDENT-TYPE-REGISTERED"),
				levelDesc:    ns("Junior"),
			},
			want: map[string]any{
				AttrName:         "444",
				AttrFirstName:    "",
				AttrLastName:     "",
				AttrEmail:        "",
				AttrRole:         "Student",
				AttrDemographics: []string{},
			},
		},
		{
			name: "visiting scholar",
			row:  personRow{ldapUID: 555, affiliations: ns("AFFILIATE-TYPE-VISITING")},
			want: map[string]any{
				AttrName:         "555",
				AttrFirstName:    "",
				AttrLastName:     "",
				AttrEmail:        "",
				AttrRole:         "Instructor",
				AttrDemographics: []string{},
			},
		},
		{
			name: "no affiliations",
			row:  personRow{ldapUID: 666},
			want: map[string]any{
				AttrName:         "666",
				AttrFirstName:    "",
				AttrLastName:     "",
				AttrEmail:        "",
				AttrRole:         "Guest",
				AttrDemographics: []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.row.attributes(discardLogger()))
		})
	}
}

func TestPersonRow_Dest(t *testing.T) {
	var row personRow
	assert.Len(t, row.dest(), 20)
}

func TestOraclePersonAttributeProvider_NonNumericID(t *testing.T) {
	p := NewOraclePersonAttributeProvider(nil, discardLogger())
	attrs, err := p.PersonAttributes(context.Background(), "bob")
	require.NoError(t, err)
	assert.Nil(t, attrs)
}

func TestOracleURL(t *testing.T) {
	url := OracleURL("dbhost", 1521, "BSPACE", "scott", "tiger")
	assert.Contains(t, url, "oracle://")
	assert.Contains(t, url, "dbhost:1521")
	assert.Contains(t, url, "BSPACE")
}
