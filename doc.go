// Package bananabit provides the extension runtime of the BananaBit CMS:
// a capability registry that owns extension lifecycles, and a composer that
// merges the routes and UI components contributed by the active extensions.
//
// Extensions:
//   - Every extension has a namespaced identity (core.auth, core.posts). The
//     remaining capabilities are optional interfaces discovered at runtime:
//     Initializer, RouteContributor, ComponentContributor and Shutdowner.
//   - Lifecycle moves one way, Unregistered to Initialized to Active to
//     ShutDown. Only the Registry moves it.
//
// Composition:
//   - Compose is a pure function of the ordered active extensions. Route
//     patterns are normalized and compared segment by segment; two extensions
//     claiming the same pattern abort startup with ROUTE_COLLISION.
//   - Component keys are unique. An extension may replace another one's
//     component only by naming the current owner in Component.Overrides;
//     every accepted override is logged and kept in ComponentRegistry.Overrides.
//
// Errors are *goerrors.Error values carrying a text code. Use HasTextCode to
// test for a code anywhere in the wrap chain.
package bananabit
