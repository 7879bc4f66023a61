package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/sanitize"
)

type CategoryCreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
}

/*
GET /admin/api/categories
- Every category with its product count
*/
func GetAllCategories(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/categories"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		filter := bson.M{}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			filter["$or"] = searchFilter(search, "name", "description")
		}

		cursor, err := db.Collection("categories").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		categories := make([]models.Category, 0)
		if err := cursor.All(ctx, &categories); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		counts, err := productCountsByCategory(ctx, db, bson.M{})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": withProductCounts(categories, counts, false),
		})
	}
}

type categoryWithCount struct {
	models.Category
	ProductCount int64 `json:"productCount"`
}

// withProductCounts pairs each category with its count, optionally dropping
// categories that have none.
func withProductCounts(categories []models.Category, counts map[primitive.ObjectID]int64, skipEmpty bool) []categoryWithCount {
	rows := make([]categoryWithCount, 0, len(categories))
	for _, category := range categories {
		count := counts[category.ID]
		if skipEmpty && count == 0 {
			continue
		}
		rows = append(rows, categoryWithCount{Category: category, ProductCount: count})
	}
	return rows
}

// productCountsByCategory counts products per category among those matching
// match.
func productCountsByCategory(ctx context.Context, db *mongo.Database, match bson.M) (map[primitive.ObjectID]int64, error) {
	filter := bson.M{"categoryId": bson.M{"$exists": true}}
	for key, value := range match {
		filter[key] = value
	}
	cursor, err := db.Collection("products").Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: bson.M{"_id": "$categoryId", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID    primitive.ObjectID `bson:"_id"`
		Count int64              `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := make(map[primitive.ObjectID]int64, len(rows))
	for _, row := range rows {
		counts[row.ID] = row.Count
	}
	return counts, nil
}

/*
POST /admin/api/categories
- Names are unique
*/
func CreateCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/categories"
		defer handlePanic(c, route)

		var req CategoryCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		name := strings.TrimSpace(req.Name)
		if name == "" {
			respondWithError(c, http.StatusBadRequest, route, "name required")
			return
		}

		category := models.Category{
			Name:        name,
			Description: sanitize.NullableString(req.Description),
			Icon:        sanitize.NullableString(req.Icon),
			CreatedAt:   time.Now(),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		result, err := db.Collection("categories").InsertOne(ctx, category)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "category already exists")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		category.ID = result.InsertedID.(primitive.ObjectID)
		log.Printf("[%s] created category %s", route, category.ID.Hex())
		c.JSON(http.StatusCreated, category)
	}
}

/*
PUT /admin/api/categories/:id
*/
func UpdateCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/categories/:id"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		var req CategoryUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid body")
			return
		}

		set := bson.M{}
		unset := bson.M{}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				respondWithError(c, http.StatusBadRequest, route, "name cannot be empty")
				return
			}
			set["name"] = name
		}
		for field, value := range map[string]*string{"description": req.Description, "icon": req.Icon} {
			if value == nil {
				continue
			}
			if trimmed := sanitize.NullableString(*value); trimmed != nil {
				set[field] = *trimmed
			} else {
				unset[field] = ""
			}
		}

		if len(set) == 0 && len(unset) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}

		update := bson.M{}
		if len(set) > 0 {
			update["$set"] = set
		}
		if len(unset) > 0 {
			update["$unset"] = unset
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var updated models.Category
		err := db.Collection("categories").
			FindOneAndUpdate(
				ctx,
				bson.M{"_id": id},
				update,
				options.FindOneAndUpdate().SetReturnDocument(options.After),
			).
			Decode(&updated)

		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			respondWithError(c, http.StatusNotFound, route, "category not found")
			return
		case mongo.IsDuplicateKeyError(err):
			respondWithError(c, http.StatusConflict, route, "category already exists")
			return
		case err != nil:
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

/*
DELETE /admin/api/categories/:id
- Products in the category are kept and left uncategorized
*/
func DeleteCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/api/categories/:id"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		result, err := db.Collection("categories").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if result.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "category not found")
			return
		}

		res, err := db.Collection("products").UpdateMany(ctx,
			bson.M{"categoryId": id},
			bson.M{"$unset": bson.M{"categoryId": ""}},
		)
		if err != nil {
			log.Printf("[%s] [WARN] products of category %s not detached: %v", route, id.Hex(), err)
		} else if res.ModifiedCount > 0 {
			log.Printf("[%s] detached %d products from category %s", route, res.ModifiedCount, id.Hex())
		}

		c.Status(http.StatusNoContent)
	}
}
