package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
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

/* =======================
   HELPERS
======================= */

// resolveCategoryID returns nil for a blank id and rejects ids that do not exist.
func resolveCategoryID(ctx context.Context, db *mongo.Database, raw string) (*primitive.ObjectID, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return nil, errors.New("invalid categoryId: " + value)
	}
	count, err := db.Collection("categories").CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.New("category not found: " + value)
	}
	return &id, nil
}

func findProduct(ctx context.Context, db *mongo.Database, id primitive.ObjectID) (models.Product, error) {
	var raw bson.M
	if err := db.Collection("products").FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		return models.Product{}, err
	}
	return normalizeProductDocument(raw)
}

/* =======================
   GET (ADMIN) – LIST
======================= */

func GetAllProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/products"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := bson.M{}
		if categoryID := strings.TrimSpace(c.Query("categoryId")); categoryID != "" {
			id, err := primitive.ObjectIDFromHex(categoryID)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid categoryId")
				return
			}
			filter["categoryId"] = id
		}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			filter["$or"] = searchFilter(search, "name", "description")
		}
		if isActive := strings.TrimSpace(c.Query("isActive")); isActive != "" {
			filter["isActive"] = strings.EqualFold(isActive, "true")
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		total, err := db.Collection("products").CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		opts := options.Find().
			SetSkip((page - 1) * limit).
			SetLimit(limit).
			SetSort(bson.D{{Key: "createdAt", Value: -1}})

		cursor, err := db.Collection("products").Find(ctx, filter, opts)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		products, err := decodeProducts(ctx, cursor)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       products,
			"pagination": paginationMeta(page, limit, total),
		})
	}
}

/* =======================
   CREATE
======================= */

func CreateProduct(db *mongo.Database, images ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/products"
		defer handlePanic(c, route)

		input, err := parseProductRequest(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		if !input.PriceSet || input.Price <= 0 {
			respondWithError(c, http.StatusBadRequest, route, "invalid price")
			return
		}
		if input.Stock < 0 {
			respondWithError(c, http.StatusBadRequest, route, "stock must be zero or greater")
			return
		}

		var originalPrice *float64
		if input.OriginalPriceSet && input.IsOnSale {
			originalPrice = &input.OriginalPrice
		}
		if err := validateSaleFields(input.Price, input.IsOnSale, originalPrice); err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		categoryID, err := resolveCategoryID(ctx, db, input.CategoryID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		var imageURL *string
		if input.Image != nil {
			url, err := saveUploadedImage(ctx, images, input.Image)
			if err != nil {
				respondUploadError(c, route, err)
				return
			}
			imageURL = &url
		}

		isActive := true
		if input.IsActiveSet {
			isActive = input.IsActive
		}

		now := time.Now()
		product := models.Product{
			Name:          sanitize.TrimmedOr(input.Name, defaultProductName),
			Description:   sanitize.NullableString(input.Description),
			Price:         input.Price,
			OriginalPrice: originalPrice,
			IsOnSale:      isProductOnSale(input.Price, input.IsOnSale, originalPrice),
			CategoryID:    categoryID,
			ImageURL:      imageURL,
			Stock:         input.Stock,
			InStock:       input.Stock > 0,
			IsActive:      isActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		res, err := db.Collection("products").InsertOne(ctx, product)
		if err != nil {
			log.Printf("[%s] insert failed: %v", route, err)
			removeStoredImage(images, imageURL)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		product.ID = res.InsertedID.(primitive.ObjectID)
		log.Printf("[%s] created product %s", route, product.ID.Hex())
		c.JSON(http.StatusCreated, product)
	}
}

/* =======================
   UPDATE
======================= */

func UpdateProduct(db *mongo.Database, images ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/products/:id"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		removeImage := false
		if removeRaw := strings.TrimSpace(c.Query("removeImage")); removeRaw != "" {
			parsed, err := strconv.ParseBool(removeRaw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "removeImage must be boolean")
				return
			}
			removeImage = parsed
		}

		input, err := parseProductRequest(c)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()

		existing, err := findProduct(ctx, db, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		updateSet := bson.M{}
		updateUnset := bson.M{}

		if input.NameSet {
			updateSet["name"] = sanitize.TrimmedOr(input.Name, defaultProductName)
		}
		if input.DescriptionSet {
			if description := sanitize.NullableString(input.Description); description != nil {
				updateSet["description"] = *description
			} else {
				updateUnset["description"] = ""
			}
		}
		if input.PriceSet && input.Price <= 0 {
			respondWithError(c, http.StatusBadRequest, route, "invalid price")
			return
		}
		if input.StockSet {
			if input.Stock < 0 {
				respondWithError(c, http.StatusBadRequest, route, "stock must be zero or greater")
				return
			}
			updateSet["stock"] = input.Stock
		}
		if input.IsActiveSet {
			updateSet["isActive"] = input.IsActive
		}
		if input.CategoryIDSet {
			categoryID, err := resolveCategoryID(ctx, db, input.CategoryID)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, err.Error())
				return
			}
			if categoryID == nil {
				updateUnset["categoryId"] = ""
			} else {
				updateSet["categoryId"] = *categoryID
			}
		}

		var saleInput saleUpdateInput
		if input.PriceSet {
			saleInput.Price = &input.Price
		}
		if input.IsOnSaleSet {
			saleInput.IsOnSale = &input.IsOnSale
		}
		if input.OriginalPriceSet {
			saleInput.OriginalPrice = &input.OriginalPrice
		}
		sale, err := resolveSaleUpdate(existing, saleInput)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if input.PriceSet {
			updateSet["price"] = sale.Price
		}
		if sale.SetIsOnSale {
			updateSet["isOnSale"] = sale.IsOnSale
		}
		if sale.SetOriginalPrice {
			updateSet["originalPrice"] = *sale.OriginalPrice
		}
		if sale.ClearOriginalPrice {
			updateUnset["originalPrice"] = ""
		}

		var newImageURL *string
		if input.Image != nil {
			url, err := saveUploadedImage(ctx, images, input.Image)
			if err != nil {
				respondUploadError(c, route, err)
				return
			}
			newImageURL = &url
			updateSet["imageUrl"] = url
		} else if removeImage {
			updateUnset["imageUrl"] = ""
		}

		if len(updateSet) == 0 && len(updateUnset) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		updateSet["updatedAt"] = time.Now()

		update := bson.M{"$set": updateSet}
		if len(updateUnset) > 0 {
			update["$unset"] = updateUnset
		}

		result, err := db.Collection("products").UpdateOne(ctx, bson.M{"_id": id}, update)
		if err != nil {
			log.Printf("[%s] update failed: %v", route, err)
			removeStoredImage(images, newImageURL)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if result.MatchedCount == 0 {
			removeStoredImage(images, newImageURL)
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}

		if newImageURL != nil || removeImage {
			removeStoredImage(images, existing.ImageURL)
		}

		updated, err := findProduct(ctx, db, id)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

/* =======================
   TOGGLE
======================= */

func ToggleProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/api/products/:id/toggle"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var raw bson.M
		err := db.Collection("products").FindOneAndUpdate(
			ctx,
			bson.M{"_id": id},
			bson.A{bson.M{"$set": bson.M{
				"isActive":  bson.M{"$not": bson.A{"$isActive"}},
				"updatedAt": time.Now(),
			}}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&raw)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

/* =======================
   DELETE
======================= */

func DeleteProduct(db *mongo.Database, images ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/api/products/:id"
		defer handlePanic(c, route)

		id, ok := pathObjectID(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var existing models.Product
		err := db.Collection("products").FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&existing)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		removeStoredImage(images, existing.ImageURL)

		c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
	}
}
