package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"therapist_id",
			"client_id",
			"scheduled_at",
			"duration_min",
			"status",
			"service_type",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"therapist_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"client_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"scheduled_at": bson.M{
				"bsonType": "date",
			},

			"duration_min": bson.M{
				"bsonType": "int",
				"minimum":  15,
				"maximum":  480,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"confirmed",
					"completed",
					"cancelled",
					"no_show",
				},
			},

			"service_type": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},

			"notes": bson.M{
				"bsonType":  "string",
				"maxLength": 2000,
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
