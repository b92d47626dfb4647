/*
Copyright © 2023 the dgmvelmod authors.
This file is part of dgmvelmod.

dgmvelmod is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

dgmvelmod is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with dgmvelmod.  If not, see <http://www.gnu.org/licenses/>.
*/

package dgmvelmod

import "fmt"

// CanonicalUnits lists the stratigraphic unit codes of DGM-diep V5 and
// VELMOD3.1 in their canonical top-to-bottom order, from the North Sea
// Supergroup (N) down to the Carboniferous Limestone Group (CL).
var CanonicalUnits = []string{
	"N",
	"NU",
	"NLNM",
	"NM",
	"NL",
	"CK",
	"KN",
	"KNG",
	"KNGL",
	"KNN",
	"S",
	"SL",
	"SG",
	"SK",
	"ATPO",
	"AT",
	"TR",
	"RN",
	"RB",
	"ZE",
	"RO",
	"DCC",
	"DC",
	"CL",
}

// UnitOrdering returns the canonical top-to-bottom rank of the given
// stratigraphic unit code.
func UnitOrdering(unit string) (int, error) {
	for i, u := range CanonicalUnits {
		if u == unit {
			return i, nil
		}
	}
	return -1, fmt.Errorf("dgmvelmod: unknown stratigraphic unit %q", unit)
}
