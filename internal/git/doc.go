// Package git reads the checked out commit of source checkouts so a run can
// record which sources its index was built from.
package git
