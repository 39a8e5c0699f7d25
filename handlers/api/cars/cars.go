package cars

import (
	"car-management/core"
	"car-management/handlers"
	"car-management/middleware"
	carsvc "car-management/service/cars"
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/juju/errors"
)

// CarService is the part of the car service the handlers use.
type CarService interface {
	Create(ctx context.Context, callerID string, in carsvc.CreateInput) (*core.Car, error)
	List(ctx context.Context, callerID string) ([]*core.Car, error)
	Search(ctx context.Context, callerID string, keyword *string) ([]*core.Car, error)
	GetByID(ctx context.Context, callerID, id string) (*core.Car, error)
	Update(ctx context.Context, callerID, id string, patch carsvc.Patch) (*core.Car, error)
	Delete(ctx context.Context, callerID, id string) error
}

func callerOrReject(w http.ResponseWriter, r *http.Request) (string, bool) {
	callerID, ok := middleware.CallerID(r.Context())
	if !ok {
		handlers.RenderMessage(w, r, http.StatusUnauthorized, "User claims not found")
	}
	return callerID, ok
}

func renderFormError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		handlers.RenderMessage(w, r, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	if !errors.Is(err, core.InvalidArgument) {
		err = errors.WithType(err, core.InvalidArgument)
	}
	handlers.RenderError(w, r, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func renderCars(w http.ResponseWriter, r *http.Request, cars []*core.Car) {
	if cars == nil {
		cars = []*core.Car{}
	}
	render.JSON(w, r, cars)
}

func HandleCreateCar(svc CarService, limits Limits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := callerOrReject(w, r)
		if !ok {
			return
		}
		form, err := parseCarForm(w, r, limits)
		if err != nil {
			renderFormError(w, r, err)
			return
		}

		in := carsvc.CreateInput{
			Title:       deref(form.Title),
			Description: deref(form.Description),
			TagsRaw:     deref(form.TagsRaw),
			Tags:        form.Tags,
			Files:       form.Files,
		}

		car, err := svc.Create(r.Context(), callerID, in)
		if err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, car)
	}
}

func HandleListCars(svc CarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := callerOrReject(w, r)
		if !ok {
			return
		}
		cars, err := svc.List(r.Context(), callerID)
		if err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		renderCars(w, r, cars)
	}
}

func HandleSearchCars(svc CarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := callerOrReject(w, r)
		if !ok {
			return
		}
		var keyword *string
		if q := r.URL.Query(); q.Has("keyword") {
			kw := q.Get("keyword")
			keyword = &kw
		}
		cars, err := svc.Search(r.Context(), callerID, keyword)
		if err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		renderCars(w, r, cars)
	}
}

func HandleGetCar(svc CarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := callerOrReject(w, r)
		if !ok {
			return
		}
		car, err := svc.GetByID(r.Context(), callerID, chi.URLParam(r, "id"))
		if err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		render.JSON(w, r, car)
	}
}

func HandleUpdateCar(svc CarService, limits Limits) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := callerOrReject(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		form, err := parseCarForm(w, r, limits)
		if err != nil {
			// An unknown or foreign id is reported before a bad body.
			if _, getErr := svc.GetByID(r.Context(), callerID, id); getErr != nil {
				handlers.RenderError(w, r, getErr)
				return
			}
			renderFormError(w, r, err)
			return
		}

		car, err := svc.Update(r.Context(), callerID, id, carsvc.Patch{
			Title:       form.Title,
			Description: form.Description,
			TagsRaw:     form.TagsRaw,
			Tags:        form.Tags,
			Files:       form.Files,
		})
		if err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		render.JSON(w, r, car)
	}
}

func HandleDeleteCar(svc CarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := callerOrReject(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), callerID, chi.URLParam(r, "id")); err != nil {
			handlers.RenderError(w, r, err)
			return
		}
		render.JSON(w, r, map[string]string{"message": "Car deleted successfully"})
	}
}

