package validators

import "go.mongodb.org/mongo-driver/bson"

var TherapistValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"name",
			"service_types",
			"working_hours",
			"session_duration_min",
			"accepting",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 200,
			},

			"service_types": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "string",
				},
			},

			"working_hours": bson.M{
				"bsonType": "array",
				"items": bson.M{
					"bsonType": "object",
					"required": []string{"weekday", "start", "end"},
					"properties": bson.M{
						"weekday": bson.M{
							"bsonType": "string",
							"enum": []string{
								"Sunday", "Monday", "Tuesday", "Wednesday",
								"Thursday", "Friday", "Saturday",
							},
						},
						"start": bson.M{
							"bsonType": "string",
							"pattern":  "^([01]?[0-9]|2[0-3]):[0-5][0-9]$",
						},
						"end": bson.M{
							"bsonType": "string",
							"pattern":  "^([01]?[0-9]|2[0-3]):[0-5][0-9]$",
						},
					},
				},
			},

			"session_duration_min": bson.M{
				"bsonType": "int",
				"minimum":  15,
				"maximum":  480,
			},

			"accepting": bson.M{
				"bsonType": "bool",
			},

			"time_zone": bson.M{
				"bsonType": "string",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
