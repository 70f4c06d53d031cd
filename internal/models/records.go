package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names.
const (
	CollectionDepartments = "departments"
	CollectionCourses     = "courses"
	CollectionSections    = "sections"
	CollectionStudents    = "students"
)

// Enumerations accepted by the store validators. Department and section buildings
// differ on purpose: sections meet in ANAC, department offices sit in NAC.
var (
	DepartmentBuildings = []string{"NAC", "CDC", "DC", "ECS", "EN2", "EN3", "EN4", "EN5", "ET", "HSCI", "NUR", "VEC"}
	SectionBuildings    = []string{"ANAC", "CDC", "DC", "ECS", "EN2", "EN3", "EN4", "EN5", "ET", "HSCI", "NUR", "VEC"}
	Semesters           = []string{"Fall", "Spring", "Summer I", "Summer II", "Summer III", "Winter"}
	Schedules           = []string{"MW", "TuTh", "MWF", "F", "S"}
	MinimumGrades       = []string{"A", "B", "C"}
)

// Major is a program of study offered by a department.
type Major struct {
	Name        string `bson:"name" json:"name" validate:"required,max=80"`
	Description string `bson:"description" json:"description" validate:"required,max=200"`
}

// Document renders the major as it is embedded in a department.
func (m Major) Document() bson.M {
	return bson.M{"name": m.Name, "description": m.Description}
}

// Department is the typed view of a departments document.
type Department struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name         string               `bson:"name" json:"name"`
	Abbreviation string               `bson:"abbreviation" json:"abbreviation"`
	ChairName    string               `bson:"chair_name" json:"chair_name"`
	Building     string               `bson:"building" json:"building"`
	Office       int                  `bson:"office" json:"office"`
	Description  string               `bson:"description" json:"description"`
	Majors       []Major              `bson:"majors" json:"majors"`
	Courses      []primitive.ObjectID `bson:"courses" json:"courses"`
}

// Course is the typed view of a courses document.
type Course struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Department   primitive.ObjectID `bson:"department" json:"department"`
	CourseNumber int                `bson:"course_number" json:"course_number"`
	CourseName   string             `bson:"course_name" json:"course_name"`
	Description  string             `bson:"description" json:"description"`
	Units        int                `bson:"units" json:"units"`
}

// Section is the typed view of a sections document.
type Section struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Course        primitive.ObjectID   `bson:"course" json:"course"`
	SectionNumber int                  `bson:"section_number" json:"section_number"`
	Semester      string               `bson:"semester" json:"semester"`
	SectionYear   int                  `bson:"section_year" json:"section_year"`
	Building      string               `bson:"building" json:"building"`
	Room          int                  `bson:"room" json:"room"`
	Schedule      string               `bson:"schedule" json:"schedule"`
	StartTime     int                  `bson:"start_time" json:"start_time"`
	Instructor    string               `bson:"instructor" json:"instructor"`
	Students      []primitive.ObjectID `bson:"students" json:"students"`
}

// DeclaredMajor records when a student joined a major.
type DeclaredMajor struct {
	Name            string    `bson:"name" json:"name"`
	DeclarationDate time.Time `bson:"declaration_date" json:"declaration_date"`
}

// Document renders the declaration as it is embedded in a student.
func (m DeclaredMajor) Document() bson.M {
	return bson.M{"name": m.Name, "declaration_date": m.DeclarationDate}
}

// GradingType discriminates the two enrollment kinds.
type GradingType string

// Grading options.
const (
	GradingPassFail    GradingType = "PassFail"
	GradingLetterGrade GradingType = "LetterGrade"
)

// Grading is the enrollment kind: PassFail carries an application date, LetterGrade a
// minimum satisfactory grade. Only the payload matching Type is stored.
type Grading struct {
	Type            GradingType `bson:"type" json:"type" validate:"required,oneof=PassFail LetterGrade"`
	ApplicationDate *time.Time  `bson:"application_date,omitempty" json:"application_date,omitempty" validate:"required_if=Type PassFail"`
	MinSatisfactory string      `bson:"min_satisfactory,omitempty" json:"min_satisfactory,omitempty" validate:"required_if=Type LetterGrade,omitempty,oneof=A B C"`
}

// PassFail builds a pass/fail enrollment applied for on the given day.
func PassFail(applied time.Time) Grading {
	return Grading{Type: GradingPassFail, ApplicationDate: &applied}
}

// LetterGrade builds a letter-grade enrollment.
func LetterGrade(minSatisfactory string) Grading {
	return Grading{Type: GradingLetterGrade, MinSatisfactory: minSatisfactory}
}

// Document renders the grading as stored inside an enrollment.
func (g Grading) Document() bson.M {
	if g.Type == GradingPassFail && g.ApplicationDate != nil {
		return bson.M{"type": string(g.Type), "application_date": *g.ApplicationDate}
	}
	return bson.M{"type": string(g.Type), "min_satisfactory": g.MinSatisfactory}
}

// Enrollment is a student's seat in a section.
type Enrollment struct {
	SectionID  primitive.ObjectID `bson:"section_id" json:"section_id"`
	Enrollment Grading            `bson:"enrollment" json:"enrollment"`
}

// Document renders the enrollment as it is embedded in a student.
func (e Enrollment) Document() bson.M {
	return bson.M{"section_id": e.SectionID, "enrollment": e.Enrollment.Document()}
}

// Student is the typed view of a students document.
type Student struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LastName  string             `bson:"last_name" json:"last_name"`
	FirstName string             `bson:"first_name" json:"first_name"`
	Email     string             `bson:"email" json:"email"`
	Majors    []DeclaredMajor    `bson:"majors" json:"majors"`
	Sections  []Enrollment       `bson:"sections" json:"sections"`
}

// DisplayName renders "Last, First" as rosters show it.
func (s Student) DisplayName() string {
	return s.LastName + ", " + s.FirstName
}

// MajorListing is one row of a department majors listing.
type MajorListing struct {
	Department  string `json:"department"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StudentMajorListing is one row of a student majors listing.
type StudentMajorListing struct {
	Student         string    `json:"student"`
	Email           string    `json:"email"`
	Major           string    `json:"major"`
	DeclarationDate time.Time `json:"declaration_date"`
}

// EnrollmentListing is one row of an enrollments listing.
type EnrollmentListing struct {
	Student       string  `json:"student"`
	Email         string  `json:"email"`
	SectionID     string  `json:"section_id"`
	Course        string  `json:"course"`
	SectionNumber int     `json:"section_number"`
	Semester      string  `json:"semester"`
	SectionYear   int     `json:"section_year"`
	Grading       Grading `json:"grading"`
}
