package services

import (
	"appcommerce/authapi"
	"appcommerce/blobstore"
	"appcommerce/database"
	"appcommerce/docstore"
	"appcommerce/imagecache"
	"appcommerce/live"
	"appcommerce/models"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"
)

var profileImageRequest = imagecache.Request{
	Placeholder: imagecache.ProfilePlaceholder,
	Error:       imagecache.ProfilePlaceholder,
	Policy:      imagecache.CacheAll,
}

// AccountService handles sign-in, sign-up and the user's profile
type AccountService struct {
	store  docstore.Store
	auth   AuthClient
	blobs  BlobStore
	images ImageLoader
	prefs  PreferenceStore
	logger *slog.Logger
}

// NewAccountService creates a new account service
func NewAccountService(store docstore.Store, auth AuthClient, blobs BlobStore, images ImageLoader, prefs PreferenceStore, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		store:  store,
		auth:   auth,
		blobs:  blobs,
		images: images,
		prefs:  prefs,
		logger: logger.With("component", "account"),
	}
}

func userPath(userID string) string {
	return docstore.Join(CollectionUsers, userID)
}

// SignIn authenticates, merges the stored profile with the new session and
// remembers the user locally. The stored profile is rewritten with the token.
func (as *AccountService) SignIn(parent context.Context, email, password string) *live.Live[models.User] {
	ctx, out := live.Start[models.User](parent)
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		out.Reject(fmt.Errorf("%w: email and password are required", ErrInvalidInput))
		return out
	}

	go func() {
		resp, err := as.auth.SignInWithPassword(ctx, email, password)
		if err != nil {
			out.Reject(fmt.Errorf("sign in: %w", err))
			return
		}

		path := userPath(resp.LocalID)
		user := models.User{Email: email}
		doc, err := as.store.Get(ctx, path)
		switch {
		case err == nil:
			if err := doc.DecodeTo(&user); err != nil {
				out.Reject(err)
				return
			}
		case errors.Is(err, docstore.ErrNotFound):
			as.logger.Info("no profile document, starting from sign-in email", "user_id", resp.LocalID)
		default:
			out.Reject(fmt.Errorf("load profile: %w", err))
			return
		}
		user.ID = resp.LocalID
		user.Token = resp.IDToken

		if err := as.store.Set(ctx, path, user); err != nil {
			out.Reject(fmt.Errorf("store profile: %w", err))
			return
		}
		if err := as.prefs.Put(ctx, database.PrefUserID, resp.LocalID); err != nil {
			out.Reject(fmt.Errorf("remember user: %w", err))
			return
		}

		as.logger.Info("user signed in", "user_id", user.ID)
		out.Resolve(user)
	}()
	return out
}

// SignUp registers the credentials and stores profile under the new user id
func (as *AccountService) SignUp(parent context.Context, creds models.Credentials, profile models.User) *live.Live[models.User] {
	ctx, out := live.Start[models.User](parent)
	if strings.TrimSpace(creds.Email) == "" || creds.Password == "" {
		out.Reject(fmt.Errorf("%w: email and password are required", ErrInvalidInput))
		return out
	}

	go func() {
		resp, err := as.auth.SignUp(ctx, creds.Email, creds.Password)
		if err != nil {
			out.Reject(fmt.Errorf("sign up: %w", err))
			return
		}

		user := profile
		user.ID = resp.LocalID
		user.Token = resp.IDToken
		if user.Email == "" {
			user.Email = creds.Email
		}
		if err := as.store.Set(ctx, userPath(user.ID), user); err != nil {
			out.Reject(fmt.Errorf("store profile: %w", err))
			return
		}

		as.logger.Info("user registered", "user_id", user.ID)
		out.Resolve(user)
	}()
	return out
}

// RequestPasswordReset asks the identity service to e-mail a reset link
func (as *AccountService) RequestPasswordReset(parent context.Context, email string) *live.Live[authapi.OobResponse] {
	ctx, out := live.Start[authapi.OobResponse](parent)
	if strings.TrimSpace(email) == "" {
		out.Reject(fmt.Errorf("%w: email is required", ErrInvalidInput))
		return out
	}

	go func() {
		ack, err := as.auth.SendOobCode(ctx, email)
		if err != nil {
			out.Reject(fmt.Errorf("password reset: %w", err))
			return
		}
		out.Resolve(ack)
	}()
	return out
}

type profilePartial struct {
	field models.ProfileField
	apply func(*models.UserWithAddresses)
	err   error
}

// LoadProfile reads the user document and its addresses independently
func (as *AccountService) LoadProfile(parent context.Context, userID string) *live.Live[models.UserWithAddresses] {
	ctx, out := live.Start[models.UserWithAddresses](parent)
	if strings.TrimSpace(userID) == "" {
		out.Reject(fmt.Errorf("%w: empty user id", ErrInvalidInput))
		return out
	}

	path := userPath(userID)
	partials := make(chan profilePartial, len(models.ProfileFields))

	go func() {
		doc, err := as.store.Get(ctx, path)
		var u models.User
		if err == nil {
			err = doc.DecodeTo(&u)
		}
		partials <- profilePartial{field: models.ProfileUser, err: err, apply: func(p *models.UserWithAddresses) { p.User = u }}
	}()
	go func() {
		addrs, err := querySub[models.UserAddress](ctx, as.store, path, SubAddresses)
		partials <- profilePartial{field: models.ProfileAddresses, err: err, apply: func(p *models.UserWithAddresses) { p.Addresses = addrs }}
	}()

	go func() {
		snap := models.UserWithAddresses{Failed: map[models.ProfileField]error{}}
		var errs []error
		for n := range len(models.ProfileFields) {
			p := <-partials

			next := snap
			next.Failed = maps.Clone(snap.Failed)
			if p.err != nil {
				next.Failed[p.field] = p.err
				errs = append(errs, fmt.Errorf("%s: %w", p.field, p.err))
			} else {
				p.apply(&next)
				next.Loaded |= p.field
			}
			snap = next

			if n == len(models.ProfileFields)-1 {
				out.PublishResult(live.Result[models.UserWithAddresses]{Value: snap, Err: errors.Join(errs...)})
				out.Complete()
			} else {
				out.Publish(snap)
			}
		}
	}()
	return out
}

// SaveProfile writes the user document and then its first address. A new
// address gets its store-assigned id in the returned snapshot.
func (as *AccountService) SaveProfile(parent context.Context, uwa models.UserWithAddresses) *live.Live[models.UserWithAddresses] {
	ctx, out := live.Start[models.UserWithAddresses](parent)
	if strings.TrimSpace(uwa.User.ID) == "" {
		out.Reject(fmt.Errorf("%w: profile without user id", ErrInvalidInput))
		return out
	}

	go func() {
		path := userPath(uwa.User.ID)
		if err := as.store.Set(ctx, path, uwa.User); err != nil {
			out.Reject(fmt.Errorf("store profile: %w", err))
			return
		}

		saved := models.UserWithAddresses{
			User:      uwa.User,
			Addresses: append([]models.UserAddress(nil), uwa.Addresses...),
			Loaded:    models.ProfileUser | models.ProfileAddresses,
		}
		if len(saved.Addresses) > 0 {
			addr := saved.Addresses[0]
			coll := docstore.Join(path, SubAddresses)
			if addr.ID == "" {
				id, err := as.store.Add(ctx, coll, addr)
				if err != nil {
					out.Reject(fmt.Errorf("add address: %w", err))
					return
				}
				addr.ID = id
			} else if err := as.store.Set(ctx, docstore.Join(coll, addr.ID), addr); err != nil {
				out.Reject(fmt.Errorf("store address: %w", err))
				return
			}
			saved.Addresses[0] = addr
		}

		as.logger.Info("profile saved", "user_id", uwa.User.ID, "addresses", len(saved.Addresses))
		out.Resolve(saved)
	}()
	return out
}

// UploadProfileImage stores r as the user's profile picture and remembers its path
func (as *AccountService) UploadProfileImage(parent context.Context, userID string, r io.Reader) *live.Live[string] {
	ctx, out := live.Start[string](parent)
	if strings.TrimSpace(userID) == "" {
		out.Reject(fmt.Errorf("%w: empty user id", ErrInvalidInput))
		return out
	}

	go func() {
		obj, err := as.blobs.Upload(ctx, blobstore.ProfileImagePath(userID), r)
		if err != nil {
			out.Reject(fmt.Errorf("upload profile image: %w", err))
			return
		}
		if err := as.prefs.Put(ctx, database.PrefProfileImagePath, obj.Path); err != nil {
			out.Reject(fmt.Errorf("remember profile image: %w", err))
			return
		}
		out.Resolve(obj.Path)
	}()
	return out
}

// ResolveProfileImage loads the user's profile picture into target
func (as *AccountService) ResolveProfileImage(ctx context.Context, userID string, target imagecache.Target) *live.Live[string] {
	if strings.TrimSpace(userID) == "" {
		target.SetImage(profileImageRequest.Error)
		return live.Resolved(live.Result[string]{Err: fmt.Errorf("%w: empty user id", ErrInvalidInput)})
	}
	return resolveInto(ctx, as.blobs, as.images, blobstore.ProfileImagePath(userID), target, profileImageRequest)
}

// CurrentUserID returns the user remembered by the last sign-in
func (as *AccountService) CurrentUserID(ctx context.Context) (string, error) {
	id, ok, err := as.prefs.Get(ctx, database.PrefUserID)
	if err != nil {
		return "", err
	}
	if !ok || id == "" {
		return "", ErrNotSignedIn
	}
	return id, nil
}

// SignOut forgets the remembered user
func (as *AccountService) SignOut(ctx context.Context) error {
	if err := as.prefs.Delete(ctx, database.PrefUserID); err != nil {
		return err
	}
	return as.prefs.Delete(ctx, database.PrefProfileImagePath)
}
