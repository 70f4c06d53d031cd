package schema

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/gloodan17/Course-Enrollment-Database/internal/models"
)

// Departments declares the departments collection.
func Departments() *AttributeSchema {
	return &AttributeSchema{
		Collection: models.CollectionDepartments,
		Variant:    VariantDepartment,
		Fields: []Field{
			{Name: "name", Kind: KindString, Rule: "required", Prompt: "Department name"},
			{Name: "abbreviation", Kind: KindString, Rule: "required", Prompt: "Abbreviation"},
			{Name: "chair_name", Kind: KindString, Rule: "required", Prompt: "Chair name"},
			{Name: "building", Kind: KindEnum, Rule: "required," + oneOf(models.DepartmentBuildings), Options: models.DepartmentBuildings, Prompt: "Building"},
			{Name: "office", Kind: KindInteger, Rule: "required", Prompt: "Office number"},
			{Name: "description", Kind: KindString, Rule: "required", Prompt: "Description"},
			{Name: "majors", Kind: KindEmbeddedArray},
			{Name: "courses", Kind: KindEmbeddedArray, Target: models.CollectionCourses},
		},
		Unique:  [][]int{{0}, {1}, {2}, {3, 4}},
		Display: Display{Fields: []string{"name"}, Unknown: "Unknown Department"},
		Validator: bson.M{"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "abbreviation", "chair_name", "building", "office", "description"},
			"properties": bson.M{
				"name": bson.M{
					"bsonType":    "string",
					"minLength":   10,
					"maxLength":   50,
					"description": "The full name of the department",
				},
				"abbreviation": bson.M{
					"bsonType":    "string",
					"maxLength":   6,
					"description": "A shortened form of the department name",
				},
				"chair_name": bson.M{
					"bsonType":    "string",
					"maxLength":   80,
					"description": "The full name of the individual leading the department",
				},
				"building": bson.M{
					"enum":        enumValues(models.DepartmentBuildings),
					"description": "The name of the building where the department's main office is located",
				},
				"office": bson.M{
					"bsonType":    "number",
					"description": "The specific office number within the building where the department's main administrative activities occur",
				},
				"description": bson.M{
					"bsonType":    "string",
					"maxLength":   200,
					"description": "A brief statement summarizing the department’s focus and responsibilities within the university",
				},
				"majors": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"name", "description"},
						"properties": bson.M{
							"name": bson.M{
								"bsonType":    "string",
								"maxLength":   80,
								"description": "Name of the major",
							},
							"description": bson.M{
								"bsonType":    "string",
								"maxLength":   200,
								"description": "Description of the major",
							},
						},
					},
					"description": "List of majors offered by the department",
					"uniqueItems": true,
				},
				"courses": bson.M{
					"bsonType": "array",
					"items":    bson.M{"bsonType": "objectId"},
				},
			},
		}},
	}
}

// Courses declares the courses collection.
func Courses() *AttributeSchema {
	return &AttributeSchema{
		Collection: models.CollectionCourses,
		Variant:    VariantCourse,
		Fields: []Field{
			{Name: "department", Kind: KindReference, Target: models.CollectionDepartments, Rule: "required", Prompt: "Department"},
			{Name: "course_number", Kind: KindInteger, Rule: "required,min=100,max=699", Prompt: "Course number"},
			{Name: "course_name", Kind: KindString, Rule: "required", Prompt: "Course name"},
			{Name: "description", Kind: KindString, Rule: "required", Prompt: "Description"},
			{Name: "units", Kind: KindInteger, Rule: "required,min=1,max=5", Prompt: "Units"},
		},
		Unique:  [][]int{{0, 1}, {0, 2}},
		Display: Display{Fields: []string{"course_name"}, Unknown: "Unknown Course"},
		Validator: bson.M{"$jsonSchema": bson.M{
			"bsonType":             "object",
			"required":             bson.A{"course_number", "course_name", "description", "units"},
			"additionalProperties": false,
			"properties": bson.M{
				"_id": bson.M{},
				"department": bson.M{
					"bsonType":    "objectId",
					"description": "A reference to the associated department",
				},
				"course_number": bson.M{
					"bsonType":    "number",
					"minimum":     100,
					"maximum":     699,
					"description": "A unique identifier that differentiates courses within a department",
				},
				"course_name": bson.M{
					"bsonType":    "string",
					"maxLength":   80,
					"description": "The title of the course",
				},
				"description": bson.M{
					"bsonType":    "string",
					"maxLength":   120,
					"description": "A detailed text description of the course",
				},
				"units": bson.M{
					"bsonType":    "number",
					"minimum":     1,
					"maximum":     5,
					"description": "Units or credits represent the value of the course",
				},
			},
		}},
	}
}

// Sections declares the sections collection.
func Sections() *AttributeSchema {
	return &AttributeSchema{
		Collection: models.CollectionSections,
		Variant:    VariantSection,
		Fields: []Field{
			{Name: "course", Kind: KindReference, Target: models.CollectionCourses, Rule: "required", Prompt: "Course"},
			{Name: "section_number", Kind: KindInteger, Rule: "required,min=1", Prompt: "Section number"},
			{Name: "semester", Kind: KindEnum, Rule: "required," + oneOf(models.Semesters), Options: models.Semesters, Prompt: "Semester"},
			{Name: "section_year", Kind: KindInteger, Rule: "required,min=1636", Prompt: "Year"},
			{Name: "building", Kind: KindEnum, Rule: "required," + oneOf(models.SectionBuildings), Options: models.SectionBuildings, Prompt: "Building"},
			{Name: "room", Kind: KindInteger, Rule: "required,min=1,max=999", Prompt: "Room"},
			{Name: "schedule", Kind: KindEnum, Rule: "required," + oneOf(models.Schedules), Options: models.Schedules, Prompt: "Schedule"},
			{Name: "start_time", Kind: KindTime, Rule: "required,min=800,max=1930", Prompt: "Start time"},
			{Name: "instructor", Kind: KindString, Rule: "required", Prompt: "Instructor"},
			{Name: "students", Kind: KindEmbeddedArray, Target: models.CollectionStudents},
		},
		Unique:  [][]int{{0, 1, 2, 3}, {2, 3, 4, 5, 6, 7}, {2, 3, 6, 7, 8}},
		Display: Display{Fields: []string{"semester", "instructor"}, Unknown: "Unknown Section"},
		Validator: bson.M{"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"course", "section_number", "semester", "section_year",
				"building", "room", "schedule", "start_time", "instructor"},
			"additionalProperties": false,
			"properties": bson.M{
				"_id": bson.M{},
				"course": bson.M{
					"bsonType":    "objectId",
					"description": "A reference to the associated course",
				},
				"section_number": bson.M{
					"bsonType":    "number",
					"minimum":     1,
					"description": "The identifier for this specific instance of a course",
				},
				"semester": bson.M{
					"enum":        enumValues(models.Semesters),
					"description": "The academic term when the section is held",
				},
				"section_year": bson.M{
					"bsonType":    "number",
					"minimum":     1636,
					"description": "The calendar year when the section is held",
				},
				"building": bson.M{
					"enum":        enumValues(models.SectionBuildings),
					"description": "The name of the building where classes are conducted",
				},
				"room": bson.M{
					"bsonType":    "number",
					"minimum":     1,
					"maximum":     999,
					"description": "The specific room number in the building where the section meets",
				},
				"schedule": bson.M{
					"enum":        enumValues(models.Schedules),
					"description": "The days of the week when the section meets",
				},
				"start_time": bson.M{
					"bsonType":    "number",
					"minimum":     800,
					"maximum":     1930,
					"description": "The starting time for the section expressed as a number",
				},
				"instructor": bson.M{
					"bsonType":    "string",
					"maxLength":   80,
					"description": "The name of the instructor teaching the section",
				},
				"students": bson.M{
					"bsonType": "array",
					"items":    bson.M{"bsonType": "objectId"},
				},
			},
		}},
	}
}

// Students declares the students collection.
func Students() *AttributeSchema {
	return &AttributeSchema{
		Collection: models.CollectionStudents,
		Variant:    VariantStudent,
		Fields: []Field{
			{Name: "last_name", Kind: KindString, Rule: "required", Prompt: "Last name"},
			{Name: "first_name", Kind: KindString, Rule: "required", Prompt: "First name"},
			{Name: "email", Kind: KindString, Rule: "required", Prompt: "Email"},
			{Name: "majors", Kind: KindEmbeddedArray},
			{Name: "sections", Kind: KindEmbeddedArray},
		},
		Unique:  [][]int{{0, 1}, {2}},
		Display: Display{Fields: []string{"last_name", "first_name"}, Unknown: "Unknown Student"},
		Validator: bson.M{"$jsonSchema": bson.M{
			"bsonType":             "object",
			"required":             bson.A{"last_name", "first_name", "email", "majors"},
			"additionalProperties": false,
			"properties": bson.M{
				"_id": bson.M{},
				"last_name": bson.M{
					"bsonType":    "string",
					"maxLength":   80,
					"description": "The string value of the student's surname",
				},
				"first_name": bson.M{
					"bsonType":    "string",
					"maxLength":   80,
					"description": "The string value of the student's given name",
				},
				"email": bson.M{
					"bsonType":    "string",
					"maxLength":   180,
					"description": "A string value representing the email through which the student can be contacted",
				},
				"majors": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"name", "declaration_date"},
						"properties": bson.M{
							"name": bson.M{
								"bsonType":    "string",
								"minLength":   5,
								"maxLength":   50,
								"description": "Name of the major",
							},
							"declaration_date": bson.M{
								"bsonType":    "date",
								"description": "The calendar day on which the student joined the major",
							},
						},
					},
					"description": "List of the majors that the student is pursuing",
				},
				"sections": bson.M{
					"bsonType": "array",
					"items": bson.M{
						"bsonType": "object",
						"required": bson.A{"section_id", "enrollment"},
						"properties": bson.M{
							"section_id": bson.M{
								"bsonType":    "objectId",
								"description": "Section ID",
							},
							"enrollment": bson.M{
								"oneOf": bson.A{
									bson.M{
										"bsonType": "object",
										"required": bson.A{"type", "application_date"},
										"properties": bson.M{
											"type": bson.M{
												"enum":        bson.A{string(models.GradingPassFail)},
												"description": "PassFail type",
											},
											"application_date": bson.M{
												"bsonType":    "date",
												"description": "The application date",
											},
										},
									},
									bson.M{
										"bsonType": "object",
										"required": bson.A{"type", "min_satisfactory"},
										"properties": bson.M{
											"type": bson.M{
												"enum":        bson.A{string(models.GradingLetterGrade)},
												"description": "LetterGrade type",
											},
											"min_satisfactory": bson.M{
												"enum":        enumValues(models.MinimumGrades),
												"description": "Minimum satisfactory grade that this student feels would be satisfactory for them",
											},
										},
									},
								},
							},
						},
					},
				},
			},
		}},
	}
}

// All returns the schema of every variant in dependency order.
func All() []*AttributeSchema {
	return []*AttributeSchema{Departments(), Courses(), Sections(), Students()}
}
