package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/payloadschema"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
)

const (
	taxonomySyncedMessage = "Taxonomy terms synchronized successfully"
	postsSyncedMessage    = "Posts synchronized successfully"
)

type languageResponse struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	Flag string `json:"flag"`
}

func (s *Server) handleTaxonomySync(c echo.Context) error {
	raw, err := readBody(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	req, err := payloadschema.DecodeTaxonomyRequest(raw)
	if err != nil {
		return s.failAdmission(c, err)
	}

	ctx := c.Request().Context()
	fields, err := s.admitTaxonomyRequest(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).Msg("taxonomy request admission failed")
		return internalError(c, syncer.CodeSyncError, "Failed to validate request")
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	result, err := s.sync.SyncTaxonomyTerms(s.actorContext(c), req)
	if err != nil {
		return s.failSyncError(c, err, "Failed to sync taxonomy terms")
	}
	return successWithMessage(c, taxonomySyncedMessage, result)
}

func (s *Server) handlePostSync(c echo.Context) error {
	raw, err := readBody(c)
	if err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	req, err := payloadschema.DecodePostRequest(raw)
	if err != nil {
		return s.failAdmission(c, err)
	}

	ctx := c.Request().Context()
	fields, err := s.admitPostRequest(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).Msg("post request admission failed")
		return internalError(c, syncer.CodeSyncError, "Failed to validate request")
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	result, err := s.sync.SyncPosts(s.actorContext(c), req)
	if err != nil {
		return s.failSyncError(c, err, "Failed to sync posts")
	}
	return successWithMessage(c, postsSyncedMessage, result)
}

func (s *Server) handleLanguages(c echo.Context) error {
	languages, err := s.sync.Languages(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("load languages failed")
		return internalError(c, "languages_error", err.Error())
	}

	items := make([]languageResponse, 0, len(languages))
	for _, lang := range languages {
		items = append(items, languageResponse{
			Slug: lang.Slug,
			Name: lang.Name,
			Flag: lang.Flag,
		})
	}
	return success(c, items)
}

func (s *Server) handleTaxonomyTerms(c echo.Context) error {
	ctx := c.Request().Context()
	taxonomy := syncer.SanitizeText(c.Param("taxonomy"))
	lang := syncer.SanitizeText(c.QueryParam("lang"))

	validator := s.sync.Validator()
	fields := map[string]string{}
	ok, err := validator.ValidTaxonomy(ctx, taxonomy)
	if err != nil {
		s.logger.Error().Err(err).Str("taxonomy", taxonomy).Msg("taxonomy check failed")
		return internalError(c, "terms_error", err.Error())
	}
	if !ok {
		fields["taxonomy"] = "is not a translatable taxonomy"
	}
	if lang != "" {
		ok, err := validator.ValidLanguage(ctx, lang)
		if err != nil {
			s.logger.Error().Err(err).Str("lang", lang).Msg("language check failed")
			return internalError(c, "terms_error", err.Error())
		}
		if !ok {
			fields["lang"] = "is not a configured language"
		}
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	terms, err := s.sync.TaxonomyTerms(ctx, taxonomy, lang)
	if err != nil {
		s.logger.Error().Err(err).Str("taxonomy", taxonomy).Msg("list terms failed")
		return internalError(c, "terms_error", err.Error())
	}
	return success(c, terms)
}

func (s *Server) failAdmission(c echo.Context, err error) error {
	var payloadErr *payloadschema.Error
	if errors.As(err, &payloadErr) {
		return failValidation(c, payloadErr.Fields)
	}
	s.logger.Error().Err(err).Msg("decode sync payload failed")
	return internalError(c, syncer.CodeSyncError, "Failed to decode request")
}

func (s *Server) failSyncError(c echo.Context, err error, prefix string) error {
	serr, ok := syncer.AsError(err)
	if !ok {
		serr = syncer.UnexpectedError(prefix, err)
	}
	return failSync(c, serr)
}

// admitTaxonomyRequest runs the per-field store predicates for a decoded
// taxonomy request and returns the failing fields.
func (s *Server) admitTaxonomyRequest(ctx context.Context, req syncer.TaxonomyRequest) (map[string]string, error) {
	validator := s.sync.Validator()
	fields := map[string]string{}

	ok, err := validator.ValidTaxonomy(ctx, req.Taxonomy)
	if err != nil {
		return nil, err
	}
	if !ok {
		fields["taxonomy"] = "is not a translatable taxonomy"
	}
	for field, termID := range map[string]int64{
		"source_term_id": req.SourceTermID,
		"target_term_id": req.TargetTermID,
	} {
		ok, err := validator.TermExists(ctx, termID)
		if err != nil {
			return nil, err
		}
		if !ok {
			fields[field] = "term does not exist"
		}
	}
	if err := admitLanguages(ctx, validator, fields, req.SourceLang, req.TargetLang); err != nil {
		return nil, err
	}
	return fields, nil
}

func (s *Server) admitPostRequest(ctx context.Context, req syncer.PostRequest) (map[string]string, error) {
	validator := s.sync.Validator()
	fields := map[string]string{}

	for field, postID := range map[string]int64{
		"source_post_id": req.SourcePostID,
		"target_post_id": req.TargetPostID,
	} {
		ok, err := validator.PostExists(ctx, postID)
		if err != nil {
			return nil, err
		}
		if !ok {
			fields[field] = "post does not exist"
		}
	}
	if err := admitLanguages(ctx, validator, fields, req.SourceLang, req.TargetLang); err != nil {
		return nil, err
	}
	return fields, nil
}

func admitLanguages(ctx context.Context, validator *syncer.Validator, fields map[string]string, sourceLang, targetLang string) error {
	for field, lang := range map[string]string{
		"source_lang": sourceLang,
		"target_lang": targetLang,
	} {
		ok, err := validator.ValidLanguage(ctx, lang)
		if err != nil {
			return err
		}
		if !ok {
			fields[field] = "is not a configured language"
		}
	}
	return nil
}

// actorContext attaches the authenticated principal and the client address
// to the request context for sync observers.
func (s *Server) actorContext(c echo.Context) context.Context {
	actor := syncer.Actor{ClientIP: clientIP(c.Request())}
	if principal, ok := principalFromContext(c); ok {
		actor.UserID = principal.UserID
		actor.Username = principal.Username
	}
	return syncer.WithActor(c.Request().Context(), actor)
}

// clientIP returns the first public address from X-Client-IP or
// X-Forwarded-For, falling back to the connection's remote address.
func clientIP(r *http.Request) string {
	for _, header := range []string{"X-Client-IP", echo.HeaderXForwardedFor} {
		for _, part := range strings.Split(r.Header.Get(header), ",") {
			if addr, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil && isPublicAddr(addr) {
				return addr.String()
			}
		}
	}

	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() || addr.IsLoopback() || addr.IsPrivate() {
		return false
	}
	if addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() {
		return false
	}
	for _, reserved := range reservedPrefixes {
		if reserved.Contains(addr) {
			return false
		}
	}
	return true
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
}
