package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CourseAttribute is the product meta key holding the learning platform course id.
const CourseAttribute = "moodle_course_id"

// CourseResolver maps storefront products to learning platform courses.
type CourseResolver struct {
	catalog CourseCatalog
}

func NewCourseResolver(catalog CourseCatalog) *CourseResolver {
	return &CourseResolver{catalog: catalog}
}

func (r *CourseResolver) Resolve(ctx context.Context, rc RunContext, productID int64) (int64, error) {
	log := rc.logger().With(zap.Int64("product_id", productID))

	raw, err := r.catalog.ProductMeta(ctx, rc.storefront(), productID, CourseAttribute)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error("course mapping lookup failed", zap.Error(err))
		}
		log.Warn("course mapping missing")
		return 0, fmt.Errorf("course for product %d: %w", productID, ErrNotFound)
	}

	courseID, ok := ParseCourseID(raw)
	if !ok {
		log.Warn("course mapping is not numeric", zap.String("value", raw))
		return 0, fmt.Errorf("course for product %d has invalid value %q: %w", productID, raw, ErrNotFound)
	}
	return courseID, nil
}

var maxCourseID = decimal.NewFromInt(math.MaxInt64)

// ParseCourseID accepts a positive integral number up to MaxInt64, allowing
// surrounding whitespace and a zero fraction such as "12.0".
func ParseCourseID(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, id > 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.Equal(d.Truncate(0)) || !d.IsPositive() {
		return 0, false
	}
	if d.GreaterThan(maxCourseID) {
		return 0, false
	}
	return d.IntPart(), true
}
