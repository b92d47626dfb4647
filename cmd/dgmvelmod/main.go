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

// Command dgmvelmod is a command-line interface for converting and
// sampling the combined DGM-diep V5 and VELMOD3.1 subsurface model.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/preseis/dgmvelmod/dgmvelmodutil"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := dgmvelmodutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
