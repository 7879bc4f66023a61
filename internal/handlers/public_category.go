package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

/*
GET /categories
- Categories sorted by name, each with its count of active products
- ?search= matches name and description
- ?hideEmpty=true drops categories with no active products
*/
func GetCategories(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /categories"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		hideEmpty := false
		if raw := strings.TrimSpace(c.Query("hideEmpty")); raw != "" {
			parsed, err := parseBoolValue(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "hideEmpty must be a boolean")
				return
			}
			hideEmpty = parsed
		}

		filter := bson.M{}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			filter["$or"] = searchFilter(search, "name", "description")
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cursor, err := db.Collection("categories").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
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

		counts, err := productCountsByCategory(ctx, db, bson.M{"isActive": true})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		rows := withProductCounts(categories, counts, hideEmpty)
		log.Printf("[%s] returning %d of %d categories", route, len(rows), len(categories))
		c.JSON(http.StatusOK, rows)
	}
}
