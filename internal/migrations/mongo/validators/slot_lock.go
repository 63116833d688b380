package validators

import "go.mongodb.org/mongo-driver/bson"

var SlotLockValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"therapist_id",
			"slot_datetime",
			"locked_by",
			"acquired_at",
			"expires_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"therapist_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"slot_datetime": bson.M{
				"bsonType": "date",
			},

			"locked_by": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"acquired_at": bson.M{
				"bsonType": "date",
			},

			"expires_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
