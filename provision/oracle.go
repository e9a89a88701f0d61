package provision

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"
)

// SelectPersonSQL joins the campus person, major, portal and term views for
// one LDAP uid.
const SelectPersonSQL = "select pi.LDAP_UID, pi.UG_GRAD_FLAG, pi.FIRST_NAME, pi.LAST_NAME, pi.EMAIL_ADDRESS, pi.AFFILIATIONS, " +
	"sm.MAJOR_NAME, sm.MAJOR_TITLE, sm.COLLEGE_ABBR, sm.MAJOR_NAME2, sm.MAJOR_TITLE2, sm.COLLEGE_ABBR2, " +
	"sm.MAJOR_NAME3, sm.MAJOR_TITLE3, sm.COLLEGE_ABBR3, sm.MAJOR_NAME4, sm.MAJOR_TITLE4, sm.COLLEGE_ABBR4, " +
	"sp.LEVEL_DESC_S, st.NEW_TRFR_FLAG " +
	"from BSPACE_PERSON_INFO_VW pi " +
	"left join BSPACE_STUDENT_MAJOR_VW sm on pi.LDAP_UID = sm.LDAP_UID " +
	"left join BSPACE_STUDENT_PORTAL_VW sp on pi.LDAP_UID = sp.LDAP_UID " +
	"left join BSPACE_STUDENT_TERM_VW st on pi.LDAP_UID = st.LDAP_UID " +
	"where pi.LDAP_UID = :1"

const (
	affiliationRegistered = "STUDENT-TYPE-REGISTERED"
	affiliationAcademic   = "EMPLOYEE-TYPE-ACADEMIC"
	affiliationStaff      = "EMPLOYEE-TYPE-STAFF"
	affiliationVisiting   = "AFFILIATE-TYPE-VISITING"
)

var ugGradRoles = map[string]string{
	"U": "Undergraduate Student",
	"G": "Graduate Student",
}

var collegeNames = map[string]string{
	"ENV DSGN": "College of Environmental Design",
	"NAT RES":  "College of Natural Resources",
}

// OracleURL builds a go-ora connection URL from its parts.
func OracleURL(server string, port int, service, user, password string) string {
	return go_ora.BuildUrl(server, port, service, user, password, nil)
}

// OpenOracle opens the campus data warehouse and checks the connection.
func OpenOracle(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("oracle", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open oracle connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get test connection: %w", err)
	}
	return db, nil
}

// OraclePersonAttributeProvider reads person attributes from the campus
// Oracle views.
type OraclePersonAttributeProvider struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewOraclePersonAttributeProvider(db *sql.DB, logger *slog.Logger) *OraclePersonAttributeProvider {
	return &OraclePersonAttributeProvider{db: db, logger: logger}
}

// PersonAttributes implements PersonAttributeProvider. Person ids are numeric
// LDAP uids; anything else is unknown.
func (p *OraclePersonAttributeProvider) PersonAttributes(ctx context.Context, personID string) (map[string]any, error) {
	ldapUID, err := strconv.ParseInt(personID, 10, 64)
	if err != nil {
		p.logger.Warn("person id is not numeric", "personId", personID)
		return nil, nil
	}

	var row personRow
	err = p.db.QueryRowContext(ctx, SelectPersonSQL, ldapUID).Scan(row.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select person %s: %w", personID, err)
	}
	attrs := row.attributes(p.logger)
	p.logger.Debug("loaded person attributes", "personId", personID, "attributes", attrs)
	return attrs, nil
}

// major is one of the four major columns.
type major struct {
	name    sql.NullString
	title   sql.NullString
	college sql.NullString
}

type personRow struct {
	ldapUID      int64
	ugGradFlag   sql.NullString
	firstName    sql.NullString
	lastName     sql.NullString
	email        sql.NullString
	affiliations sql.NullString
	majors       [4]major
	levelDesc    sql.NullString
	newTrfrFlag  sql.NullString
}

// dest lists scan targets in SelectPersonSQL column order.
func (r *personRow) dest() []any {
	out := []any{&r.ldapUID, &r.ugGradFlag, &r.firstName, &r.lastName, &r.email, &r.affiliations}
	for i := range r.majors {
		out = append(out, &r.majors[i].name, &r.majors[i].title, &r.majors[i].college)
	}
	return append(out, &r.levelDesc, &r.newTrfrFlag)
}

func (r *personRow) attributes(logger *slog.Logger) map[string]any {
	attrs := map[string]any{
		AttrName:      strconv.FormatInt(r.ldapUID, 10),
		AttrFirstName: r.firstName.String,
		AttrLastName:  r.lastName.String,
		AttrEmail:     r.email.String,
		AttrRole:      r.role(),
	}
	if m := r.major(); m != "" {
		attrs[AttrMajor] = m
	}
	if college := strip(r.majors[0].college); college != "" {
		if name, ok := collegeNames[college]; ok {
			college = name
		}
		attrs[AttrCollege] = college
	}
	attrs[AttrDemographics] = r.demographics(logger)
	return attrs
}

func (r *personRow) hasAffiliation(name string) bool {
	for _, a := range strings.Split(r.affiliations.String, ",") {
		if a == name {
			return true
		}
	}
	return false
}

func (r *personRow) role() string {
	switch {
	case r.hasAffiliation(affiliationRegistered):
		if !r.ugGradFlag.Valid {
			return "Student"
		}
		return ugGradRoles[r.ugGradFlag.String]
	case r.hasAffiliation(affiliationAcademic):
		return "Instructor"
	case r.hasAffiliation(affiliationStaff):
		return "Staff"
	case r.hasAffiliation(affiliationVisiting):
		return "Instructor"
	default:
		return "Guest"
	}
}

// major joins the titles of all majors, falling back to the major name.
func (r *personRow) major() string {
	var sb strings.Builder
	for i, m := range r.majors {
		name := strip(m.name)
		if name == "" {
			continue
		}
		switch {
		case i == 1:
			sb.WriteString(" : ")
		case i > 1:
			sb.WriteString(" ; ")
		}
		if title := strip(m.title); title != "" {
			sb.WriteString(title)
		} else {
			sb.WriteString(name)
		}
	}
	return sb.String()
}

// demographics only covers registered students.
func (r *personRow) demographics(logger *slog.Logger) []string {
	out := []string{}
	if !r.hasAffiliation(affiliationRegistered) {
		return out
	}
	var standing string
	switch flag := strip(r.ugGradFlag); flag {
	case "G":
		standing = "/standings/grad"
	case "U":
		standing = "/standings/undergrad"
	default:
		logger.Error("registered student has unknown ug_grad_flag", "personId", r.ldapUID, "flag", flag)
		return out
	}

	set := map[string]struct{}{}
	if level := strip(r.levelDesc); level != "" {
		set["/student/educ_level/"+level] = struct{}{}
	}
	if trfr := strip(r.newTrfrFlag); trfr != "" {
		set["/student/new_trfr_flag/"+trfr] = struct{}{}
	}
	for _, m := range r.majors {
		name := strip(m.name)
		if name == "" {
			continue
		}
		college := "/colleges/" + strip(m.college) + standing
		set[college] = struct{}{}
		set[college+"/majors/"+name] = struct{}{}
	}
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func strip(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return strings.TrimSpace(s.String)
}
