package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
	"github.com/gloodan17/Course-Enrollment-Database/internal/service"
	appErrors "github.com/gloodan17/Course-Enrollment-Database/pkg/errors"
)

type departmentMajors interface {
	AddMajor(ctx context.Context, departmentID primitive.ObjectID, major models.Major) error
	DeleteMajor(ctx context.Context, name string) error
	ListMajors(ctx context.Context) ([]models.MajorListing, error)
}

type studentRelationships interface {
	AddMajor(ctx context.Context, studentID primitive.ObjectID, name string, declared time.Time) error
	DeleteMajor(ctx context.Context, studentID primitive.ObjectID, name string) (int64, error)
	ListMajors(ctx context.Context) ([]models.StudentMajorListing, error)
	AddEnrollment(ctx context.Context, studentID, sectionID primitive.ObjectID, grading models.Grading) error
	DeleteEnrollment(ctx context.Context, studentID, sectionID primitive.ObjectID) (int64, error)
	ListEnrollments(ctx context.Context) ([]models.EnrollmentListing, error)
}

type listingSaver interface {
	Save(ctx context.Context, collection string, format service.ExportFormat) (*service.ExportResult, error)
}

// Dependencies are the operations the menus drive.
type Dependencies struct {
	Records     entitySource
	Departments departmentMajors
	Students    studentRelationships
	// Exporter is optional; without it the Export menu reports that exports are off.
	Exporter listingSaver
	Logger   *zap.Logger
}

// Option is one numbered menu entry. A nil Action leaves the menu.
type Option struct {
	Label  string
	Action func(ctx context.Context) error
}

// Menu is a titled list of options run until its exit entry is chosen.
type Menu struct {
	Title   string
	Options []Option
}

// Session runs the interactive menus over one input and output.
type Session struct {
	prompt      *Prompter
	records     entitySource
	departments departmentMajors
	students    studentRelationships
	exporter    listingSaver
	logger      *zap.Logger
}

// NewSession constructs a session reading answers from in and writing to out.
func NewSession(in io.Reader, out io.Writer, deps Dependencies) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		prompt:      NewPrompter(in, out, deps.Records),
		records:     deps.Records,
		departments: deps.Departments,
		students:    deps.Students,
		exporter:    deps.Exporter,
		logger:      logger,
	}
}

// Run shows the main menu until the operator exits or input ends.
func (s *Session) Run(ctx context.Context) error {
	err := s.run(ctx, s.mainMenu())
	if errors.Is(err, ErrInputClosed) {
		return nil
	}
	return err
}

func (s *Session) run(ctx context.Context, menu Menu) error {
	labels := make([]string, 0, len(menu.Options))
	for _, o := range menu.Options {
		labels = append(labels, o.Label)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		choice, err := s.prompt.Choice(menu.Title, labels)
		if err != nil {
			return err
		}
		s.prompt.Printf("\n")
		action := menu.Options[choice].Action
		if action == nil {
			return nil
		}
		if err := action(ctx); err != nil {
			if errors.Is(err, ErrInputClosed) || errors.Is(err, context.Canceled) {
				return err
			}
			s.report(err)
		}
		s.prompt.Printf("\n")
	}
}

// report prints an operation failure; the session always continues.
func (s *Session) report(err error) {
	if errors.Is(err, ErrCancelled) {
		s.prompt.Printf("Selection cancelled.\n")
		return
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		s.prompt.Printf("Error: %s\n", appErr.Message)
	} else {
		s.prompt.Printf("Error: %v\n", err)
	}
	s.logger.Debug("operation failed", zap.Error(err))
}

func (s *Session) mainMenu() Menu {
	return Menu{Title: "Select Option:", Options: []Option{
		{Label: "Add", Action: s.submenu(s.addMenu())},
		{Label: "Select", Action: s.submenu(s.selectMenu())},
		{Label: "List", Action: s.submenu(s.listMenu())},
		{Label: "Delete", Action: s.submenu(s.deleteMenu())},
		{Label: "Export", Action: s.submenu(s.exportMenu())},
		{Label: "Exit this application"},
	}}
}

func (s *Session) submenu(menu Menu) func(context.Context) error {
	return func(ctx context.Context) error {
		return s.run(ctx, menu)
	}
}

func (s *Session) addMenu() Menu {
	return Menu{Title: "Select Collection To Add:", Options: []Option{
		{Label: "Departments", Action: s.addDocument(models.CollectionDepartments)},
		{Label: "Majors", Action: s.addDepartmentMajor},
		{Label: "Students", Action: s.addDocument(models.CollectionStudents)},
		{Label: "Courses", Action: s.addDocument(models.CollectionCourses)},
		{Label: "Sections", Action: s.addDocument(models.CollectionSections)},
		{Label: "StudentMajors", Action: s.addStudentMajor},
		{Label: "Enrollments", Action: s.addEnrollment},
		{Label: "Exit"},
	}}
}

func (s *Session) selectMenu() Menu {
	return Menu{Title: "Select Collection To Select:", Options: []Option{
		{Label: "Departments", Action: s.selectDocument(models.CollectionDepartments)},
		{Label: "Students", Action: s.selectDocument(models.CollectionStudents)},
		{Label: "Courses", Action: s.selectDocument(models.CollectionCourses)},
		{Label: "Sections", Action: s.selectDocument(models.CollectionSections)},
		{Label: "Exit"},
	}}
}

func (s *Session) listMenu() Menu {
	return Menu{Title: "Select Collection To List:", Options: []Option{
		{Label: "Departments", Action: s.listDocuments(models.CollectionDepartments)},
		{Label: "Majors", Action: s.listDepartmentMajors},
		{Label: "Students", Action: s.listDocuments(models.CollectionStudents)},
		{Label: "Courses", Action: s.listDocuments(models.CollectionCourses)},
		{Label: "Sections", Action: s.listDocuments(models.CollectionSections)},
		{Label: "StudentMajors", Action: s.listStudentMajors},
		{Label: "Enrollments", Action: s.listEnrollments},
		{Label: "Exit"},
	}}
}

func (s *Session) deleteMenu() Menu {
	return Menu{Title: "Select Collection to Delete:", Options: []Option{
		{Label: "Departments", Action: s.deleteDocument(models.CollectionDepartments)},
		{Label: "Majors", Action: s.deleteDepartmentMajor},
		{Label: "Students", Action: s.deleteDocument(models.CollectionStudents)},
		{Label: "Courses", Action: s.deleteDocument(models.CollectionCourses)},
		{Label: "Sections", Action: s.deleteDocument(models.CollectionSections)},
		{Label: "StudentMajors", Action: s.deleteStudentMajor},
		{Label: "Enrollments", Action: s.deleteEnrollment},
		{Label: "Exit"},
	}}
}

func (s *Session) exportMenu() Menu {
	return Menu{Title: "Select Collection To Export:", Options: []Option{
		{Label: "Departments", Action: s.exportListing(models.CollectionDepartments)},
		{Label: "Students", Action: s.exportListing(models.CollectionStudents)},
		{Label: "Courses", Action: s.exportListing(models.CollectionCourses)},
		{Label: "Sections", Action: s.exportListing(models.CollectionSections)},
		{Label: "Exit"},
	}}
}

// retry runs op until it succeeds, fails with an error the operator cannot fix by
// re-entering input, or the operator declines to try again.
func (s *Session) retry(ctx context.Context, op func(ctx context.Context) error) error {
	for {
		err := op(ctx)
		if err == nil || !appErrors.IsRetryable(err) {
			return err
		}
		s.report(err)
		again, promptErr := s.prompt.Confirm("Try again?")
		if promptErr != nil {
			return promptErr
		}
		if !again {
			return nil
		}
	}
}

func (s *Session) addDocument(collection string) func(context.Context) error {
	return func(ctx context.Context) error {
		entity, err := s.records.Entity(collection)
		if err != nil {
			return err
		}
		return s.retry(ctx, func(ctx context.Context) error {
			values, err := s.prompt.Values(ctx, entity.Schema())
			if err != nil {
				return err
			}
			id, err := entity.Create(ctx, values)
			if err != nil {
				return err
			}
			s.prompt.Printf("Created %s %s.\n", entity.Kind(), id.Hex())
			return nil
		})
	}
}

func (s *Session) selectDocument(collection string) func(context.Context) error {
	return func(ctx context.Context) error {
		doc, _, err := s.prompt.Select(ctx, collection)
		if err != nil {
			return err
		}
		s.printDocument(doc)
		return nil
	}
}

func (s *Session) listDocuments(collection string) func(context.Context) error {
	return func(ctx context.Context) error {
		entity, err := s.records.Entity(collection)
		if err != nil {
			return err
		}
		docs, err := entity.ListAll(ctx)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			s.printDocument(doc)
		}
		s.prompt.Printf("%d %s listed.\n", len(docs), collection)
		return nil
	}
}

func (s *Session) deleteDocument(collection string) func(context.Context) error {
	return func(ctx context.Context) error {
		entity, err := s.records.Entity(collection)
		if err != nil {
			return err
		}
		doc, _, err := s.prompt.Select(ctx, collection)
		if err != nil {
			return err
		}
		id, ok := doc.ID()
		if !ok {
			return appErrors.Clonef(appErrors.ErrInternal, "selected %s has no identifier", entity.Kind())
		}
		n, err := entity.Delete(ctx, id)
		if err != nil {
			return err
		}
		s.prompt.Printf("Deleted %d document(s).\n", n)
		return nil
	}
}

func (s *Session) selectID(ctx context.Context, collection string) (primitive.ObjectID, error) {
	s.prompt.Printf("Select %s\n", collection)
	doc, _, err := s.prompt.Select(ctx, collection)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, ok := doc.ID()
	if !ok {
		return primitive.NilObjectID, appErrors.Clonef(appErrors.ErrInternal, "selected %s document has no identifier", collection)
	}
	return id, nil
}

func (s *Session) addDepartmentMajor(ctx context.Context) error {
	deptID, err := s.selectID(ctx, models.CollectionDepartments)
	if err != nil {
		return err
	}
	return s.retry(ctx, func(ctx context.Context) error {
		name, err := s.prompt.Line("Enter a name for the major")
		if err != nil {
			return err
		}
		description, err := s.prompt.Line("Enter a description for the major")
		if err != nil {
			return err
		}
		if err := s.departments.AddMajor(ctx, deptID, models.Major{Name: name, Description: description}); err != nil {
			return err
		}
		s.prompt.Printf("Major %q added.\n", name)
		return nil
	})
}

func (s *Session) deleteDepartmentMajor(ctx context.Context) error {
	name, err := s.prompt.Line("Name of the major to delete")
	if err != nil {
		return err
	}
	if err := s.departments.DeleteMajor(ctx, name); err != nil {
		return err
	}
	s.prompt.Printf("Major %q deleted.\n", name)
	return nil
}

func (s *Session) listDepartmentMajors(ctx context.Context) error {
	rows, err := s.departments.ListMajors(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.prompt.Printf("%s: %s (%s)\n", row.Department, row.Name, row.Description)
	}
	return nil
}

// addStudentMajor offers the majors departments currently list.
func (s *Session) addStudentMajor(ctx context.Context) error {
	studentID, err := s.selectID(ctx, models.CollectionStudents)
	if err != nil {
		return err
	}
	majors, err := s.departments.ListMajors(ctx)
	if err != nil {
		return err
	}
	if len(majors) == 0 {
		s.prompt.Printf("No department offers a major yet.\n")
		return nil
	}
	labels := make([]string, 0, len(majors))
	for _, m := range majors {
		labels = append(labels, m.Name+" ("+m.Department+")")
	}
	return s.retry(ctx, func(ctx context.Context) error {
		choice, err := s.prompt.Choice("Select a major:", labels)
		if err != nil {
			return err
		}
		declared, err := s.prompt.Date("Enter the declaration date")
		if err != nil {
			return err
		}
		if err := s.students.AddMajor(ctx, studentID, majors[choice].Name, declared); err != nil {
			return err
		}
		s.prompt.Printf("Major %q declared.\n", majors[choice].Name)
		return nil
	})
}

func (s *Session) deleteStudentMajor(ctx context.Context) error {
	studentID, err := s.selectID(ctx, models.CollectionStudents)
	if err != nil {
		return err
	}
	name, err := s.prompt.Line("Major Name")
	if err != nil {
		return err
	}
	n, err := s.students.DeleteMajor(ctx, studentID, name)
	if err != nil {
		return err
	}
	s.prompt.Printf("Modified %d document(s).\n", n)
	return nil
}

func (s *Session) listStudentMajors(ctx context.Context) error {
	rows, err := s.students.ListMajors(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.prompt.Printf("%s <%s>: %s since %s\n", row.Student, row.Email, row.Major, row.DeclarationDate.Format(dateLayout))
	}
	return nil
}

func (s *Session) addEnrollment(ctx context.Context) error {
	studentID, err := s.selectID(ctx, models.CollectionStudents)
	if err != nil {
		return err
	}
	return s.retry(ctx, func(ctx context.Context) error {
		sectionID, err := s.selectID(ctx, models.CollectionSections)
		if err != nil {
			return err
		}
		grading, err := s.promptGrading()
		if err != nil {
			return err
		}
		if err := s.students.AddEnrollment(ctx, studentID, sectionID, grading); err != nil {
			return err
		}
		s.prompt.Printf("Enrolled.\n")
		return nil
	})
}

func (s *Session) promptGrading() (models.Grading, error) {
	kinds := []string{string(models.GradingPassFail), string(models.GradingLetterGrade)}
	choice, err := s.prompt.Choice("Select the enrollment type:", kinds)
	if err != nil {
		return models.Grading{}, err
	}
	if models.GradingType(kinds[choice]) == models.GradingPassFail {
		applied, err := s.prompt.Date("Enter the application date")
		if err != nil {
			return models.Grading{}, err
		}
		return models.PassFail(applied), nil
	}
	grade, err := s.prompt.Choice("Select the minimum satisfactory grade:", models.MinimumGrades)
	if err != nil {
		return models.Grading{}, err
	}
	return models.LetterGrade(models.MinimumGrades[grade]), nil
}

func (s *Session) deleteEnrollment(ctx context.Context) error {
	studentID, err := s.selectID(ctx, models.CollectionStudents)
	if err != nil {
		return err
	}
	sectionID, err := s.selectID(ctx, models.CollectionSections)
	if err != nil {
		return err
	}
	n, err := s.students.DeleteEnrollment(ctx, studentID, sectionID)
	if err != nil {
		return err
	}
	s.prompt.Printf("Modified %d document(s).\n", n)
	return nil
}

func (s *Session) listEnrollments(ctx context.Context) error {
	rows, err := s.students.ListEnrollments(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		s.prompt.Printf("%s <%s>: %s section %d, %s %d, %s\n",
			row.Student, row.Email, row.Course, row.SectionNumber, row.Semester, row.SectionYear, describeGrading(row.Grading))
	}
	return nil
}

func describeGrading(g models.Grading) string {
	if g.Type == models.GradingPassFail && g.ApplicationDate != nil {
		return "pass/fail applied " + g.ApplicationDate.Format(dateLayout)
	}
	return "letter grade, minimum " + g.MinSatisfactory
}

func (s *Session) exportListing(collection string) func(context.Context) error {
	return func(ctx context.Context) error {
		if s.exporter == nil {
			s.prompt.Printf("Exports are disabled; set EXPORT_DIR to enable them.\n")
			return nil
		}
		formats := []string{string(service.ExportCSV), string(service.ExportPDF)}
		choice, err := s.prompt.Choice("Select a format:", formats)
		if err != nil {
			return err
		}
		result, err := s.exporter.Save(ctx, collection, service.ExportFormat(formats[choice]))
		if err != nil {
			return err
		}
		s.prompt.Printf("Wrote %d row(s) to %s\n", result.Rows, result.Path)
		return nil
	}
}

// printDocument renders doc as relaxed extended JSON so identifiers and dates stay
// readable.
func (s *Session) printDocument(doc models.Document) {
	out, err := bson.MarshalExtJSONIndent(bson.M(doc), false, false, "", "  ")
	if err != nil {
		fallback, _ := json.Marshal(doc)
		out = fallback
	}
	s.prompt.Printf("%s\n", out)
}
