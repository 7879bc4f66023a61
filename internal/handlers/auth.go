package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
	"storefront/internal/sanitize"
)

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Phone     string `json:"phone"`
	Cedula    string `json:"cedula"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type profileResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	Cedula    *string `json:"cedula"`
	IsAdmin   bool    `json:"isAdmin"`
}

func toProfileResponse(p models.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID.Hex(),
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
		Cedula:    p.Cedula,
		IsAdmin:   p.IsAdmin,
	}
}

func Register(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/register"
		defer handlePanic(c, route)

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Println("[AUTH] [ERROR] password hash failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "password hash failed")
			return
		}

		now := time.Now()
		profile := models.Profile{
			Email:        email,
			PasswordHash: string(hash),
			FirstName:    sanitize.NullableString(req.FirstName),
			LastName:     sanitize.NullableString(req.LastName),
			Phone:        sanitize.NullableString(req.Phone),
			Cedula:       sanitize.NullableString(req.Cedula),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		res, err := db.Collection("profiles").InsertOne(ctx, profile)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "email already registered")
			return
		}
		if err != nil {
			log.Println("[AUTH] [ERROR] register insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		profile.ID = res.InsertedID.(primitive.ObjectID)

		token, err := issueToken(profile, jwtSecret, accessTTL)
		if err != nil {
			log.Println("[AUTH] [ERROR] register token generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[AUTH] [INFO] profile registered:", profile.Email)
		c.JSON(http.StatusCreated, gin.H{
			"accessToken": token,
			"expiresIn":   int64(accessTTL.Seconds()),
			"user":        toProfileResponse(profile),
		})
	}
}

func Login(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/login"
		defer handlePanic(c, route)

		profile, ok := authenticate(c, db, route)
		if !ok {
			return
		}

		token, err := issueToken(profile, jwtSecret, accessTTL)
		if err != nil {
			log.Println("[AUTH] [ERROR] login token generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[AUTH] [INFO] login succeeded:", profile.Email)
		c.JSON(http.StatusOK, gin.H{
			"accessToken": token,
			"expiresIn":   int64(accessTTL.Seconds()),
			"user":        toProfileResponse(profile),
		})
	}
}

// authenticate binds a LoginRequest and checks it against the stored hash.
// It writes the error response itself when it returns false.
func authenticate(c *gin.Context, db *mongo.Database, route string) (models.Profile, bool) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return models.Profile{}, false
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || strings.TrimSpace(req.Password) == "" {
		respondWithError(c, http.StatusBadRequest, route, "email and password are required")
		return models.Profile{}, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var profile models.Profile
	err := db.Collection("profiles").FindOne(ctx, bson.M{"email": email}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		log.Println("[AUTH] [ERROR] login unknown email")
		respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
		return models.Profile{}, false
	}
	if err != nil {
		log.Println("[AUTH] [ERROR] login lookup failed:", err)
		respondWithError(c, http.StatusInternalServerError, route, "db error")
		return models.Profile{}, false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(req.Password)); err != nil {
		log.Println("[AUTH] [ERROR] login invalid credentials")
		respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
		return models.Profile{}, false
	}
	return profile, true
}

func issueToken(profile models.Profile, secret string, accessTTL time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":    profile.ID.Hex(),
		"userId": profile.ID.Hex(),
		"email":  profile.Email,
		"role":   profile.Role(),
		"iat":    now.Unix(),
		"exp":    now.Add(accessTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
